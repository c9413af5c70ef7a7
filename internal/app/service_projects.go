package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"nexus/api/internal/rbac"
	"nexus/api/internal/store"
	"nexus/api/internal/util"
)

func (s *Service) CreateProject(ctx context.Context, userID, name, description string) (ProjectView, error) {
	if strings.TrimSpace(userID) == "" {
		return ProjectView{}, errNotAuthenticated()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ProjectView{}, errValidation("name is required")
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   userID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return ProjectView{}, err
	}
	created, err := s.store.GetProject(ctx, project.ID)
	if err != nil {
		return ProjectView{}, err
	}
	return toProjectView(created, store.RoleOwner), nil
}

func (s *Service) ListProjects(ctx context.Context, userID string) ([]ProjectView, error) {
	items := make([]ProjectView, 0)
	if strings.TrimSpace(userID) == "" {
		return items, nil
	}
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, project := range projects {
		role := store.RoleMember
		if membership, err := s.store.GetMembership(ctx, project.ID, userID); err == nil {
			role = membership.Role
		}
		items = append(items, toProjectView(project, role))
	}
	return items, nil
}

// GetProject returns nil for projects the caller cannot see.
func (s *Service) GetProject(ctx context.Context, userID, projectID string) (*ProjectView, error) {
	if !s.isMember(ctx, userID, projectID) {
		return nil, nil
	}
	project, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	membership, err := s.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	view := toProjectView(project, membership.Role)
	return &view, nil
}

// AddMember adds a user by display name. Adding an existing member is a no-op.
func (s *Service) AddMember(ctx context.Context, userID, projectID, memberName string) (MemberView, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionManage); err != nil {
		return MemberView{}, err
	}
	memberName = strings.TrimSpace(memberName)
	if memberName == "" {
		return MemberView{}, errValidation("name is required")
	}
	user, err := s.store.EnsureUserByName(ctx, memberName)
	if err != nil {
		return MemberView{}, err
	}
	if _, err := s.store.AddMember(ctx, store.Membership{
		ProjectID: projectID,
		UserID:    user.ID,
		Role:      store.RoleMember,
	}); err != nil {
		return MemberView{}, err
	}
	membership, err := s.store.GetMembership(ctx, projectID, user.ID)
	if err != nil {
		return MemberView{}, err
	}
	return MemberView{UserID: user.ID, DisplayName: user.DisplayName, Role: membership.Role, JoinedAt: membership.CreatedAt}, nil
}

func (s *Service) ListMembers(ctx context.Context, userID, projectID string) ([]MemberView, error) {
	items := make([]MemberView, 0)
	if !s.isMember(ctx, userID, projectID) {
		return items, nil
	}
	members, err := s.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, member := range members {
		view := MemberView{UserID: member.UserID, Role: member.Role, JoinedAt: member.CreatedAt}
		if user, err := s.store.GetUserByID(ctx, member.UserID); err == nil {
			view.DisplayName = user.DisplayName
		}
		items = append(items, view)
	}
	return items, nil
}
