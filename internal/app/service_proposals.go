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

type ProposalInput struct {
	Kind  string   `json:"kind"`
	Match string   `json:"match"`
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// EnqueueProposal queues a note operation attributed to the caller.
func (s *Service) EnqueueProposal(ctx context.Context, userID, projectID string, input ProposalInput) (ProposalView, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionWrite); err != nil {
		return ProposalView{}, err
	}
	kind := store.ProposalKind(strings.TrimSpace(input.Kind))
	if !kind.Valid() {
		return ProposalView{}, errValidation("kind must be create, update or delete")
	}
	proposal := store.Proposal{
		ID:        util.NewID("prop"),
		ProjectID: projectID,
		AuthorID:  userID,
		Kind:      kind,
		Match:     strings.TrimSpace(input.Match),
		Title:     strings.TrimSpace(input.Title),
		Body:      input.Body,
	}
	switch kind {
	case store.ProposalCreate:
		if proposal.Title == "" && proposal.Match == "" {
			return ProposalView{}, errValidation("title is required")
		}
	case store.ProposalUpdate, store.ProposalDelete:
		if proposal.Match == "" {
			return ProposalView{}, errValidation("match is required")
		}
	}

	if err := s.store.InsertProposal(ctx, proposal, input.Tags); err != nil {
		return ProposalView{}, err
	}
	created, err := s.store.GetProposalWithTags(ctx, proposal.ID)
	if err != nil {
		return ProposalView{}, err
	}
	return toProposalView(created), nil
}

// ListProposals returns the caller's pending proposals in a project.
func (s *Service) ListProposals(ctx context.Context, userID, projectID string) ([]ProposalView, error) {
	items := make([]ProposalView, 0)
	if !s.isMember(ctx, userID, projectID) {
		return items, nil
	}
	proposals, err := s.store.ListProposals(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	for _, proposal := range proposals {
		items = append(items, toProposalView(proposal))
	}
	return items, nil
}

// ApplyProposal performs the proposal and removes it from the queue. Only the
// author may apply, and only while still a member of the project.
func (s *Service) ApplyProposal(ctx context.Context, userID, proposalID string) (ApplyResult, error) {
	proposal, err := s.proposalForReview(ctx, userID, proposalID)
	if err != nil {
		return ApplyResult{}, err
	}

	outcome, err := s.store.ApplyProposal(ctx, proposal.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ApplyResult{}, errNotFound("Proposal")
	}
	if err != nil {
		return ApplyResult{}, err
	}

	result := ApplyResult{
		ProposalID:     outcome.ProposalID,
		Kind:           string(outcome.Kind),
		Matched:        outcome.Matched,
		Folded:         outcome.Folded,
		RenameConflict: outcome.RenameConflict,
	}
	if !outcome.Matched {
		return result, nil
	}

	label := proposal.Title
	if label == "" {
		label = proposal.Match
	}
	message := "Apply " + string(proposal.Kind) + " proposal: " + label
	if outcome.Kind == store.ProposalDelete {
		s.notesChanged(ctx, userID, proposal.ProjectID, message, nil, []string{outcome.NoteID})
		return result, nil
	}
	s.notesChanged(ctx, userID, proposal.ProjectID, message, []string{outcome.NoteID}, nil)
	note, err := s.noteView(ctx, outcome.NoteID)
	if err != nil {
		return ApplyResult{}, err
	}
	result.Note = &note
	return result, nil
}

// RejectProposal drops the proposal and its provisional tag links.
func (s *Service) RejectProposal(ctx context.Context, userID, proposalID string) error {
	proposal, err := s.proposalForReview(ctx, userID, proposalID)
	if err != nil {
		return err
	}
	if err := s.store.RejectProposal(ctx, proposal.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Proposal")
		}
		return err
	}
	return nil
}

func (s *Service) proposalForReview(ctx context.Context, userID, proposalID string) (store.Proposal, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Proposal{}, errNotAuthenticated()
	}
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Proposal{}, errNotFound("Proposal")
	}
	if err != nil {
		return store.Proposal{}, err
	}
	if proposal.AuthorID != userID {
		return store.Proposal{}, errForbidden()
	}
	if _, err := s.requireMember(ctx, userID, proposal.ProjectID, rbac.ActionReview); err != nil {
		return store.Proposal{}, err
	}
	return proposal, nil
}
