package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nexus/api/internal/store"
)

// DataStore defines the reads an export needs.
type DataStore interface {
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListNotesWithTags(ctx context.Context, projectID, status string) ([]store.NoteWithTags, error)
}

// Service provides project export functionality
type Service struct {
	store DataStore
	now   func() time.Time
}

func NewService(store DataStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Export renders the accepted notes of a project in the requested format.
func (s *Service) Export(ctx context.Context, projectID string, format Format) (*Result, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	notes, err := s.store.ListNotesWithTags(ctx, projectID, store.NoteStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}

	bundle := Project{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		ExportedAt:  s.now().UTC(),
		Notes:       make([]Note, 0, len(notes)),
	}
	for _, note := range notes {
		bundle.Notes = append(bundle.Notes, NoteFromStore(note))
	}

	stem := Slug(project.Name)
	switch format {
	case FormatMarkdown:
		data, err := ProjectMarkdown(bundle)
		if err != nil {
			return nil, fmt.Errorf("render markdown: %w", err)
		}
		return &Result{Data: data, Filename: stem + ".md", MimeType: "text/markdown; charset=utf-8"}, nil
	case FormatJSON:
		data, err := json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return &Result{Data: append(data, '\n'), Filename: stem + ".json", MimeType: "application/json"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// NoteFromStore flattens a stored note and its tags.
func NoteFromStore(note store.NoteWithTags) Note {
	tags := make([]string, 0, len(note.Tags))
	for _, tag := range note.Tags {
		tags = append(tags, tag.Name)
	}
	return Note{
		ID:        note.ID,
		Title:     note.Title,
		Body:      note.Body,
		Tags:      tags,
		UpdatedAt: note.UpdatedAt,
	}
}
