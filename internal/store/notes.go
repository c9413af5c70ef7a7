package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const noteSelectField = `id, project_id, title, body, status, created_by, created_at, updated_at`

// InsertNote creates a note and links each named tag, creating tags as needed.
func (s *SQLStore) InsertNote(ctx context.Context, note Note, tagNames []string) error {
	if note.Status == "" {
		note.Status = NoteStatusAccepted
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now()
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = note.CreatedAt
	}
	return s.inTx(ctx, func(tx *SQLStore) error {
		if _, err := tx.GetNoteByTitle(ctx, note.ProjectID, note.Title); err == nil {
			return ErrTitleTaken
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check note title: %w", err)
		}
		if err := tx.insertNoteRow(ctx, note); err != nil {
			return err
		}
		for _, name := range uniqueTagNames(tagNames) {
			tag, err := tx.EnsureTag(ctx, note.ProjectID, name)
			if err != nil {
				return err
			}
			if _, err := tx.linkTag(ctx, OwnerNote, note.ID, tag.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) insertNoteRow(ctx context.Context, note Note) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO notes (id, project_id, title, body, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, note.ID, note.ProjectID, note.Title, note.Body, note.Status, note.CreatedBy, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTitleTaken
		}
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *SQLStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+noteSelectField+` FROM notes WHERE id=$1`, noteID)
	return scanNote(row)
}

// GetNoteByTitle matches the title exactly; titles are unique per project.
func (s *SQLStore) GetNoteByTitle(ctx context.Context, projectID, title string) (Note, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+noteSelectField+` FROM notes WHERE project_id=$1 AND title=$2`, projectID, title)
	return scanNote(row)
}

// ListNotes returns a project's notes newest first.
func (s *SQLStore) ListNotes(ctx context.Context, projectID string) ([]Note, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+noteSelectField+` FROM notes
		WHERE project_id=$1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// ListNotesWithTags returns notes with their tags. An empty status lists every note.
func (s *SQLStore) ListNotesWithTags(ctx context.Context, projectID, status string) ([]NoteWithTags, error) {
	notes, err := s.ListNotes(ctx, projectID)
	if err != nil {
		return nil, err
	}

	tagsByNote, err := s.noteTagIndex(ctx, projectID)
	if err != nil {
		return nil, err
	}

	items := make([]NoteWithTags, 0, len(notes))
	for _, note := range notes {
		if status != "" && note.Status != status {
			continue
		}
		tags := tagsByNote[note.ID]
		if tags == nil {
			tags = []Tag{}
		}
		items = append(items, NoteWithTags{Note: note, Tags: tags})
	}
	return items, nil
}

func (s *SQLStore) GetNoteWithTags(ctx context.Context, noteID string) (NoteWithTags, error) {
	note, err := s.GetNote(ctx, noteID)
	if err != nil {
		return NoteWithTags{}, err
	}
	tags, err := s.tagsFor(ctx, OwnerNote, note.ID)
	if err != nil {
		return NoteWithTags{}, err
	}
	return NoteWithTags{Note: note, Tags: tags}, nil
}

func (s *SQLStore) noteTagIndex(ctx context.Context, projectID string) (map[string][]Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT nt.owner_id, `+tagSelectField+`
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.owner_kind=$1 AND t.project_id=$2
		ORDER BY t.name ASC
	`, string(OwnerNote), projectID)
	if err != nil {
		return nil, fmt.Errorf("list note tags: %w", err)
	}
	defer rows.Close()

	index := make(map[string][]Tag)
	for rows.Next() {
		var ownerID string
		var tag Tag
		var r, g, b sql.NullInt64
		if err := rows.Scan(&ownerID, &tag.ID, &tag.ProjectID, &tag.Name, &r, &g, &b, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		if r.Valid && g.Valid && b.Valid {
			tag.Color = &Color{R: int(r.Int64), G: int(g.Int64), B: int(b.Int64)}
		}
		index[ownerID] = append(index[ownerID], tag)
	}
	return index, rows.Err()
}

func (s *SQLStore) UpdateNoteBody(ctx context.Context, noteID, body string) error {
	result, err := s.q.ExecContext(ctx, `UPDATE notes SET body=$2, updated_at=$3 WHERE id=$1`, noteID, body, now())
	if err != nil {
		return fmt.Errorf("update note body: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLStore) updateNote(ctx context.Context, noteID, title, body string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE notes SET title=$2, body=$3, updated_at=$4 WHERE id=$1`, noteID, title, body, now())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTitleTaken
		}
		return fmt.Errorf("update note: %w", err)
	}
	return nil
}

// DeleteNote removes a note's tag links and then the note itself.
func (s *SQLStore) DeleteNote(ctx context.Context, noteID string) error {
	return s.inTx(ctx, func(tx *SQLStore) error {
		if err := tx.unlinkAll(ctx, OwnerNote, noteID); err != nil {
			return err
		}
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM notes WHERE id=$1`, noteID); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	})
}

// RemoveNoteByTitle deletes the note with this exact title. A missing note is
// not an error; the returned note is nil in that case.
func (s *SQLStore) RemoveNoteByTitle(ctx context.Context, projectID, title string) (*Note, error) {
	var removed *Note
	err := s.inTx(ctx, func(tx *SQLStore) error {
		note, err := tx.GetNoteByTitle(ctx, projectID, title)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup note by title: %w", err)
		}
		if err := tx.DeleteNote(ctx, note.ID); err != nil {
			return err
		}
		removed = &note
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// AddNoteTag links a tag by name, creating the tag if needed.
func (s *SQLStore) AddNoteTag(ctx context.Context, note Note, name string) (Tag, error) {
	var tag Tag
	err := s.inTx(ctx, func(tx *SQLStore) error {
		var err error
		tag, err = tx.EnsureTag(ctx, note.ProjectID, name)
		if err != nil {
			return err
		}
		_, err = tx.linkTag(ctx, OwnerNote, note.ID, tag.ID)
		return err
	})
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

// RemoveNoteTag unlinks a tag by name. Unknown tags and missing links are no-ops.
func (s *SQLStore) RemoveNoteTag(ctx context.Context, note Note, name string) (bool, error) {
	tag, err := s.tagByName(ctx, note.ProjectID, strings.TrimSpace(name))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup tag: %w", err)
	}
	return s.unlinkTag(ctx, OwnerNote, note.ID, tag.ID)
}

// ReconcileNoteTags makes the note's tag set equal to desired. Links already in
// place are never touched, so a repeated call performs no writes.
func (s *SQLStore) ReconcileNoteTags(ctx context.Context, note Note, desired []string) (TagSync, error) {
	var sync TagSync
	err := s.inTx(ctx, func(tx *SQLStore) error {
		want := make(map[string]struct{})
		for _, name := range uniqueTagNames(desired) {
			tag, err := tx.EnsureTag(ctx, note.ProjectID, name)
			if err != nil {
				return err
			}
			want[tag.ID] = struct{}{}
		}

		current, err := tx.links(ctx, OwnerNote, note.ID)
		if err != nil {
			return err
		}
		have := make(map[string]struct{}, len(current))
		for _, link := range current {
			have[link.TagID] = struct{}{}
			if _, ok := want[link.TagID]; ok {
				continue
			}
			if _, err := tx.q.ExecContext(ctx, `DELETE FROM note_tags WHERE id=$1`, link.ID); err != nil {
				return fmt.Errorf("delete stale link: %w", err)
			}
			sync.Deleted++
		}

		for tagID := range want {
			if _, ok := have[tagID]; ok {
				continue
			}
			inserted, err := tx.linkTag(ctx, OwnerNote, note.ID, tagID)
			if err != nil {
				return err
			}
			if inserted {
				sync.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return TagSync{}, err
	}
	return sync, nil
}

// SearchNotes is the SQL fallback for note search: a case-insensitive
// substring match over title and body.
func (s *SQLStore) SearchNotes(ctx context.Context, projectID, text string, limit, offset int) ([]NoteWithTags, int, error) {
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(text))) + "%"
	const where = `project_id=$1 AND (LOWER(title) LIKE $2 ESCAPE '\' OR LOWER(body) LIKE $2 ESCAPE '\')`

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE `+where, projectID, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count note search: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+noteSelectField+` FROM notes
		WHERE `+where+`
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, projectID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search notes: %w", err)
	}
	notes, err := collectNotes(rows)
	rows.Close()
	if err != nil {
		return nil, 0, err
	}

	items := make([]NoteWithTags, 0, len(notes))
	for _, note := range notes {
		tags, err := s.tagsFor(ctx, OwnerNote, note.ID)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, NoteWithTags{Note: note, Tags: tags})
	}
	return items, total, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func scanNote(row rowScanner) (Note, error) {
	var note Note
	err := row.Scan(&note.ID, &note.ProjectID, &note.Title, &note.Body, &note.Status, &note.CreatedBy, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	return items, rows.Err()
}
