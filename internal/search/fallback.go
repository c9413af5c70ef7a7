package search

import (
	"context"
	"strings"
	"unicode/utf8"

	"nexus/api/internal/store"
)

// NoteSearcher is the store query the fallback runs on.
type NoteSearcher interface {
	SearchNotes(ctx context.Context, projectID, text string, limit, offset int) ([]store.NoteWithTags, int, error)
}

// StoreFallback searches notes with a SQL LIKE match when Meilisearch is
// absent or unhealthy.
type StoreFallback struct {
	notes NoteSearcher
}

func NewStoreFallback(notes NoteSearcher) *StoreFallback {
	return &StoreFallback{notes: notes}
}

func (f *StoreFallback) Search(ctx context.Context, q Query) ([]Result, int, error) {
	q = normalizeQuery(q)
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	notes, total, err := f.notes.SearchNotes(ctx, q.ProjectID, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(notes))
	for _, note := range notes {
		record := RecordFromNote(note)
		results = append(results, Result{
			ID:        record.ID,
			ProjectID: record.ProjectID,
			Title:     record.Title,
			Snippet:   snippet(record.Body, q.Text, 160),
			Tags:      record.Tags,
		})
	}
	return results, total, nil
}

// RecordFromNote converts a stored note into its index document.
func RecordFromNote(note store.NoteWithTags) NoteRecord {
	tags := make([]string, 0, len(note.Tags))
	for _, tag := range note.Tags {
		tags = append(tags, tag.Name)
	}
	return NoteRecord{
		ID:        note.ID,
		ProjectID: note.ProjectID,
		Title:     note.Title,
		Body:      note.Body,
		Tags:      tags,
	}
}

// snippet returns up to width runes of body centred on the first match of text.
func snippet(body, text string, width int) string {
	runes := []rune(body)
	if len(runes) <= width {
		return body
	}
	start := 0
	if text = strings.TrimSpace(text); text != "" {
		if idx := strings.Index(strings.ToLower(body), strings.ToLower(text)); idx >= 0 {
			start = utf8.RuneCountInString(body[:idx]) - width/4
		}
	}
	if start < 0 {
		start = 0
	}
	if start+width > len(runes) {
		start = len(runes) - width
	}
	out := string(runes[start : start+width])
	if start > 0 {
		out = "…" + out
	}
	if start+width < len(runes) {
		out += "…"
	}
	return out
}
