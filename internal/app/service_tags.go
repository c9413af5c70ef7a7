package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"nexus/api/internal/rbac"
	"nexus/api/internal/store"
)

func (s *Service) ListTags(ctx context.Context, userID, projectID string) ([]TagView, error) {
	if !s.isMember(ctx, userID, projectID) {
		return []TagView{}, nil
	}
	tags, err := s.store.ListTags(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return toTagViews(tags), nil
}

// EnsureTag finds or creates a project tag by name.
func (s *Service) EnsureTag(ctx context.Context, userID, projectID, name string) (TagView, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionWrite); err != nil {
		return TagView{}, err
	}
	if strings.TrimSpace(name) == "" {
		return TagView{}, errValidation("tag name is required")
	}
	tag, err := s.store.EnsureTag(ctx, projectID, name)
	if err != nil {
		return TagView{}, err
	}
	return TagView{ID: tag.ID, Name: tag.Name, Color: tag.Color}, nil
}

func (s *Service) SetTagColor(ctx context.Context, userID, tagID string, color store.Color) (TagView, error) {
	if strings.TrimSpace(userID) == "" {
		return TagView{}, errNotAuthenticated()
	}
	for _, channel := range []int{color.R, color.G, color.B} {
		if channel < 0 || channel > 255 {
			return TagView{}, errValidation("color channels must be between 0 and 255")
		}
	}
	tag, err := s.store.GetTag(ctx, tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return TagView{}, errNotFound("Tag")
	}
	if err != nil {
		return TagView{}, err
	}
	if _, err := s.requireMember(ctx, userID, tag.ProjectID, rbac.ActionWrite); err != nil {
		return TagView{}, err
	}
	if err := s.store.SetTagColor(ctx, tag.ID, color); err != nil {
		return TagView{}, err
	}
	return TagView{ID: tag.ID, Name: tag.Name, Color: &color}, nil
}
