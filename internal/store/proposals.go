package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nexus/api/internal/util"
)

const proposalSelectField = `id, project_id, author_id, kind, match_title, title, body, created_at`

// InsertProposal queues a proposal and links its provisional tags to the
// proposal itself, not to any note.
func (s *SQLStore) InsertProposal(ctx context.Context, proposal Proposal, tagNames []string) error {
	if !proposal.Kind.Valid() {
		return fmt.Errorf("insert proposal: invalid kind %q", proposal.Kind)
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now()
	}
	return s.inTx(ctx, func(tx *SQLStore) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO proposals (id, project_id, author_id, kind, match_title, title, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, proposal.ID, proposal.ProjectID, proposal.AuthorID, string(proposal.Kind),
			proposal.Match, proposal.Title, proposal.Body, proposal.CreatedAt); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		for _, name := range uniqueTagNames(tagNames) {
			tag, err := tx.EnsureTag(ctx, proposal.ProjectID, name)
			if err != nil {
				return err
			}
			if _, err := tx.linkTag(ctx, OwnerProposal, proposal.ID, tag.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+proposalSelectField+` FROM proposals WHERE id=$1`, proposalID)
	return scanProposal(row)
}

func (s *SQLStore) GetProposalWithTags(ctx context.Context, proposalID string) (ProposalWithTags, error) {
	proposal, err := s.GetProposal(ctx, proposalID)
	if err != nil {
		return ProposalWithTags{}, err
	}
	tags, err := s.tagsFor(ctx, OwnerProposal, proposal.ID)
	if err != nil {
		return ProposalWithTags{}, err
	}
	return ProposalWithTags{Proposal: proposal, Tags: tags}, nil
}

// ListProposals returns the author's pending proposals in a project, oldest first.
func (s *SQLStore) ListProposals(ctx context.Context, projectID, authorID string) ([]ProposalWithTags, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+proposalSelectField+` FROM proposals
		WHERE project_id=$1 AND author_id=$2
		ORDER BY created_at ASC
	`, projectID, authorID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	proposals := make([]Proposal, 0)
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, proposal)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	rows.Close()

	items := make([]ProposalWithTags, 0, len(proposals))
	for _, proposal := range proposals {
		tags, err := s.tagsFor(ctx, OwnerProposal, proposal.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, ProposalWithTags{Proposal: proposal, Tags: tags})
	}
	return items, nil
}

// ApplyProposal performs the proposal's note operation and removes the
// proposal in one transaction. A missing target note is a no-op and a rename
// onto a taken title keeps the old title; the proposal is removed either way.
func (s *SQLStore) ApplyProposal(ctx context.Context, proposalID string) (ApplyOutcome, error) {
	var outcome ApplyOutcome
	err := s.inTx(ctx, func(tx *SQLStore) error {
		proposal, err := tx.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		outcome = ApplyOutcome{ProposalID: proposal.ID, Kind: proposal.Kind}

		switch proposal.Kind {
		case ProposalCreate:
			err = tx.applyCreate(ctx, proposal, &outcome)
		case ProposalUpdate:
			err = tx.applyUpdate(ctx, proposal, &outcome)
		case ProposalDelete:
			err = tx.applyDelete(ctx, proposal, &outcome)
		default:
			err = fmt.Errorf("apply proposal: unknown kind %q", proposal.Kind)
		}
		if err != nil {
			return err
		}
		return tx.deleteProposal(ctx, proposal.ID)
	})
	if err != nil {
		return ApplyOutcome{}, err
	}
	return outcome, nil
}

func (s *SQLStore) applyCreate(ctx context.Context, proposal Proposal, outcome *ApplyOutcome) error {
	title := proposal.Title
	if title == "" {
		title = proposal.Match
	}
	if title == "" {
		return nil
	}

	existing, err := s.GetNoteByTitle(ctx, proposal.ProjectID, title)
	switch {
	case err == nil:
		// Titles are unique, so a create for a taken title folds into the existing note.
		if proposal.Body != "" && proposal.Body != existing.Body {
			if err := s.updateNote(ctx, existing.ID, existing.Title, proposal.Body); err != nil {
				return err
			}
		}
		outcome.NoteID = existing.ID
		outcome.Matched = true
		outcome.Folded = true
	case errors.Is(err, sql.ErrNoRows):
		created := now()
		note := Note{
			ID:        util.NewID("note"),
			ProjectID: proposal.ProjectID,
			Title:     title,
			Body:      proposal.Body,
			Status:    NoteStatusAccepted,
			CreatedBy: proposal.AuthorID,
			CreatedAt: created,
			UpdatedAt: created,
		}
		if err := s.insertNoteRow(ctx, note); err != nil {
			return err
		}
		outcome.NoteID = note.ID
		outcome.Matched = true
	default:
		return fmt.Errorf("lookup note by title: %w", err)
	}

	moved, err := s.moveProposalLinks(ctx, proposal.ID, outcome.NoteID)
	if err != nil {
		return err
	}
	outcome.LinksMoved = moved
	return nil
}

func (s *SQLStore) applyUpdate(ctx context.Context, proposal Proposal, outcome *ApplyOutcome) error {
	note, err := s.GetNoteByTitle(ctx, proposal.ProjectID, proposal.Match)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup note by title: %w", err)
	}

	title := proposal.Title
	if title == "" {
		title = note.Title
	}
	body := proposal.Body
	if body == "" {
		body = note.Body
	}
	if title != note.Title {
		// Another note owns the new title: keep the current one and apply the rest.
		if _, err := s.GetNoteByTitle(ctx, proposal.ProjectID, title); err == nil {
			title = note.Title
			outcome.RenameConflict = true
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check note title: %w", err)
		}
	}
	if err := s.updateNote(ctx, note.ID, title, body); err != nil {
		return err
	}

	outcome.NoteID = note.ID
	outcome.Matched = true
	moved, err := s.moveProposalLinks(ctx, proposal.ID, note.ID)
	if err != nil {
		return err
	}
	outcome.LinksMoved = moved
	return nil
}

func (s *SQLStore) applyDelete(ctx context.Context, proposal Proposal, outcome *ApplyOutcome) error {
	note, err := s.GetNoteByTitle(ctx, proposal.ProjectID, proposal.Match)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup note by title: %w", err)
	}
	if err := s.DeleteNote(ctx, note.ID); err != nil {
		return err
	}
	outcome.NoteID = note.ID
	outcome.Matched = true
	return nil
}

// moveProposalLinks re-points the proposal's tag links at the note. Links the
// note already has are dropped instead, so nothing is duplicated.
func (s *SQLStore) moveProposalLinks(ctx context.Context, proposalID, noteID string) (int, error) {
	pending, err := s.links(ctx, OwnerProposal, proposalID)
	if err != nil {
		return 0, err
	}
	existing, err := s.links(ctx, OwnerNote, noteID)
	if err != nil {
		return 0, err
	}
	has := make(map[string]struct{}, len(existing))
	for _, link := range existing {
		has[link.TagID] = struct{}{}
	}

	moved := 0
	for _, link := range pending {
		if _, ok := has[link.TagID]; ok {
			if _, err := s.q.ExecContext(ctx, `DELETE FROM note_tags WHERE id=$1`, link.ID); err != nil {
				return moved, fmt.Errorf("drop duplicate link: %w", err)
			}
			continue
		}
		if _, err := s.q.ExecContext(ctx, `
			UPDATE note_tags SET owner_kind=$2, owner_id=$3 WHERE id=$1
		`, link.ID, string(OwnerNote), noteID); err != nil {
			return moved, fmt.Errorf("move link: %w", err)
		}
		has[link.TagID] = struct{}{}
		moved++
	}
	return moved, nil
}

// RejectProposal drops the proposal and its provisional tag links.
func (s *SQLStore) RejectProposal(ctx context.Context, proposalID string) error {
	return s.inTx(ctx, func(tx *SQLStore) error {
		if _, err := tx.GetProposal(ctx, proposalID); err != nil {
			return err
		}
		return tx.deleteProposal(ctx, proposalID)
	})
}

func (s *SQLStore) deleteProposal(ctx context.Context, proposalID string) error {
	if err := s.unlinkAll(ctx, OwnerProposal, proposalID); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM proposals WHERE id=$1`, proposalID); err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	return nil
}

func scanProposal(row rowScanner) (Proposal, error) {
	var proposal Proposal
	var kind string
	err := row.Scan(&proposal.ID, &proposal.ProjectID, &proposal.AuthorID, &kind,
		&proposal.Match, &proposal.Title, &proposal.Body, &proposal.CreatedAt)
	if err != nil {
		return Proposal{}, err
	}
	proposal.Kind = ProposalKind(kind)
	return proposal, nil
}
