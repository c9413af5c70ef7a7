package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"nexus/api/internal/store"
)

func TestNoteMarkdownFrontMatter(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := NoteMarkdown(Note{
		Title:     `Project "deadline"`,
		Body:      "Deadline updated to Q3.",
		Tags:      []string{"timeline", "deadline"},
		UpdatedAt: updated,
	})
	if err != nil {
		t.Fatalf("NoteMarkdown() error = %v", err)
	}
	want := "---\n" +
		"title: \"Project \\\"deadline\\\"\"\n" +
		"tags: [timeline, deadline]\n" +
		"updated: 2026-03-01T12:00:00Z\n" +
		"---\n\n" +
		"# Project \"deadline\"\n\n" +
		"Deadline updated to Q3.\n"
	if string(got) != want {
		t.Fatalf("unexpected markdown:\n%s\nwant:\n%s", got, want)
	}
}

func TestNoteMarkdownWithoutBodyOrTags(t *testing.T) {
	got, err := NoteMarkdown(Note{Title: "Empty"})
	if err != nil {
		t.Fatalf("NoteMarkdown() error = %v", err)
	}
	if string(got) != "---\ntitle: \"Empty\"\ntags: []\n---\n\n# Empty\n" {
		t.Fatalf("unexpected markdown %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Project deadline":     "project-deadline",
		"  Q3 / launch plan! ": "q3-launch-plan",
		"Über Café":            "über-café",
		"???":                  "untitled",
	}
	for input, want := range tests {
		if got := Slug(input); got != want {
			t.Errorf("Slug(%q) = %q, want %q", input, got, want)
		}
	}
}

type fakeStore struct {
	project store.Project
	notes   []store.NoteWithTags
	err     error
	status  string
}

func (f *fakeStore) GetProject(context.Context, string) (store.Project, error) {
	return f.project, f.err
}

func (f *fakeStore) ListNotesWithTags(_ context.Context, _ string, status string) ([]store.NoteWithTags, error) {
	f.status = status
	return f.notes, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		project: store.Project{ID: "project_1", Name: "Apollo Launch", Description: "Launch notes"},
		notes: []store.NoteWithTags{
			{Note: store.Note{ID: "note_1", Title: "Project deadline", Body: "Q3"}, Tags: []store.Tag{{Name: "timeline"}}},
			{Note: store.Note{ID: "note_2", Title: "Owners", Body: ""}},
		},
	}
}

func TestExportMarkdown(t *testing.T) {
	fake := newFakeStore()
	svc := NewService(fake)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	result, err := svc.Export(context.Background(), "project_1", FormatMarkdown)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if fake.status != store.NoteStatusAccepted {
		t.Fatalf("expected accepted notes only, got %q", fake.status)
	}
	if result.Filename != "apollo-launch.md" {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
	body := string(result.Data)
	for _, want := range []string{"# Apollo Launch", "Launch notes", "_Exported 2026-01-02T03:04:05Z. 2 notes._", "## Project deadline", "Tags: timeline", "## Owners"} {
		if !strings.Contains(body, want) {
			t.Errorf("markdown missing %q:\n%s", want, body)
		}
	}
}

func TestExportJSON(t *testing.T) {
	result, err := NewService(newFakeStore()).Export(context.Background(), "project_1", FormatJSON)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	var bundle Project
	if err := json.Unmarshal(result.Data, &bundle); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(bundle.Notes) != 2 || bundle.Notes[1].Tags == nil {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if result.MimeType != "application/json" {
		t.Fatalf("unexpected mime %q", result.MimeType)
	}
}

func TestExportErrors(t *testing.T) {
	fake := newFakeStore()
	fake.err = sql.ErrNoRows
	if _, err := NewService(fake).Export(context.Background(), "missing", FormatMarkdown); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected wrapped ErrNoRows, got %v", err)
	}
	if _, err := NewService(newFakeStore()).Export(context.Background(), "project_1", Format("pdf")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if f, _ := ParseFormat(""); f != FormatMarkdown {
		t.Fatalf("expected markdown default, got %q", f)
	}
}
