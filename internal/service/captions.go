package service

import "clarivid/internal/core/domain"

// BuildSceneGuide derives the scene guide from an ordered outcome list: one
// caption per scene, rendered or not, so a client can show both what made
// the final cut and what was attempted but dropped.
func BuildSceneGuide(outcomes []domain.SceneOutcome) []domain.SceneCaption {
	guide := make([]domain.SceneCaption, 0, len(outcomes))
	for _, o := range outcomes {
		guide = append(guide, domain.SceneCaption{
			Index:    o.Index,
			Text:     o.Caption,
			Rendered: o.Rendered,
		})
	}
	return guide
}
