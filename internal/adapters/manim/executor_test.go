package manim

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectClassName(t *testing.T) {
	cases := []struct {
		name string
		code string
		want string
	}{
		{
			name: "simple scene class",
			code: "from manim import *\n\nclass FourierScene(Scene):\n    def construct(self):\n        pass\n",
			want: "FourierScene",
		},
		{
			name: "first scene class wins",
			code: "class Helper:\n    pass\n\nclass IntroScene(MovingCameraScene):\n    pass\nclass Second(Scene):\n    pass\n",
			want: "IntroScene",
		},
		{
			name: "no class falls back",
			code: "print('hello')\n",
			want: "Scene",
		},
	}

	for _, tc := range cases {
		if got := detectClassName(tc.code); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestFindArtifactSkipsPartialMovieFiles(t *testing.T) {
	dir := t.TempDir()

	partial := filepath.Join(dir, "videos", "scene", "480p15", "partial_movie_files")
	if err := os.MkdirAll(partial, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partial, "scene_0.mp4"), []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	final := filepath.Join(dir, "videos", "scene", "480p15")
	wantPath := filepath.Join(final, "scene_0.mp4")
	if err := os.WriteFile(wantPath, []byte("final"), 0644); err != nil {
		t.Fatal(err)
	}

	got, found := findArtifact(dir, "scene_0.mp4")
	if !found {
		t.Fatal("expected to find artifact")
	}
	if got != wantPath {
		t.Fatalf("expected %s, got %s", wantPath, got)
	}
}

func TestFindArtifactMissing(t *testing.T) {
	if _, found := findArtifact(t.TempDir(), "scene_0.mp4"); found {
		t.Fatal("expected no artifact in empty dir")
	}
}
