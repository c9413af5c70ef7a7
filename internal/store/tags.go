package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"nexus/api/internal/util"
)

const (
	goldenAngle    = 137.508
	tagSaturation  = 0.65
	tagValue       = 0.90
	tagSelectField = `t.id, t.project_id, t.name, t.color_r, t.color_g, t.color_b, t.created_at`
)

// GoldenAngleColor picks the display colour for the index-th tag of a project.
// Successive hues are a golden angle apart, so neighbours stay distinguishable
// without storing any palette state.
func GoldenAngleColor(index int) Color {
	hue := math.Mod(float64(index)*goldenAngle, 360)
	return hsvToRGB(hue, tagSaturation, tagValue)
}

func hsvToRGB(hue, saturation, value float64) Color {
	c := value * saturation
	x := c * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := value - c

	var r, g, b float64
	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return Color{
		R: int(math.Round((r + m) * 255)),
		G: int(math.Round((g + m) * 255)),
		B: int(math.Round((b + m) * 255)),
	}
}

// EnsureTag resolves a tag name to its project-scoped tag, creating it when
// absent. The insert is conditional on the (project_id, name) constraint so
// concurrent callers converge on one row.
func (s *SQLStore) EnsureTag(ctx context.Context, projectID, name string) (Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tag{}, ErrEmptyTagName
	}

	tag, err := s.tagByName(ctx, projectID, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("lookup tag: %w", err)
	}

	var count int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE project_id=$1`, projectID).Scan(&count); err != nil {
		return Tag{}, fmt.Errorf("count tags: %w", err)
	}
	color := GoldenAngleColor(count)

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO tags (id, project_id, name, color_r, color_g, color_b, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (project_id, name) DO NOTHING
	`, util.NewID("tag"), projectID, name, color.R, color.G, color.B, now()); err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}

	tag, err = s.tagByName(ctx, projectID, name)
	if err != nil {
		return Tag{}, fmt.Errorf("reload tag: %w", err)
	}
	return tag, nil
}

func (s *SQLStore) tagByName(ctx context.Context, projectID, name string) (Tag, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+tagSelectField+` FROM tags t WHERE t.project_id=$1 AND t.name=$2`, projectID, name)
	return scanTag(row)
}

func (s *SQLStore) GetTag(ctx context.Context, tagID string) (Tag, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+tagSelectField+` FROM tags t WHERE t.id=$1`, tagID)
	return scanTag(row)
}

// ListTags returns a project's tag catalog ordered by name.
func (s *SQLStore) ListTags(ctx context.Context, projectID string) ([]Tag, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+tagSelectField+` FROM tags t WHERE t.project_id=$1 ORDER BY t.name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	return collectTags(rows)
}

func (s *SQLStore) SetTagColor(ctx context.Context, tagID string, color Color) error {
	result, err := s.q.ExecContext(ctx, `
		UPDATE tags SET color_r=$2, color_g=$3, color_b=$4 WHERE id=$1
	`, tagID, color.R, color.G, color.B)
	if err != nil {
		return fmt.Errorf("update tag color: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// tagsFor lists the tags linked to one owner, ordered by name.
func (s *SQLStore) tagsFor(ctx context.Context, kind OwnerKind, ownerID string) ([]Tag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+tagSelectField+`
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.owner_kind=$1 AND nt.owner_id=$2
		ORDER BY t.name ASC
	`, string(kind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list %s tags: %w", kind, err)
	}
	defer rows.Close()
	return collectTags(rows)
}

// linkTag attaches a tag to a note or proposal; an existing link is a no-op.
func (s *SQLStore) linkTag(ctx context.Context, kind OwnerKind, ownerID, tagID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO note_tags (id, tag_id, owner_kind, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_kind, owner_id, tag_id) DO NOTHING
	`, util.NewID("nt"), tagID, string(kind), ownerID, now())
	if err != nil {
		return false, fmt.Errorf("link tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link tag rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) unlinkTag(ctx context.Context, kind OwnerKind, ownerID, tagID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM note_tags WHERE owner_kind=$1 AND owner_id=$2 AND tag_id=$3
	`, string(kind), ownerID, tagID)
	if err != nil {
		return false, fmt.Errorf("unlink tag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlink tag rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) unlinkAll(ctx context.Context, kind OwnerKind, ownerID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM note_tags WHERE owner_kind=$1 AND owner_id=$2`, string(kind), ownerID); err != nil {
		return fmt.Errorf("unlink %s tags: %w", kind, err)
	}
	return nil
}

func (s *SQLStore) links(ctx context.Context, kind OwnerKind, ownerID string) ([]NoteTag, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, tag_id, owner_kind, owner_id FROM note_tags
		WHERE owner_kind=$1 AND owner_id=$2
		ORDER BY created_at ASC
	`, string(kind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	items := make([]NoteTag, 0)
	for rows.Next() {
		var link NoteTag
		var owner string
		if err := rows.Scan(&link.ID, &link.TagID, &owner, &link.OwnerID); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		link.OwnerKind = OwnerKind(owner)
		items = append(items, link)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner) (Tag, error) {
	var tag Tag
	var r, g, b sql.NullInt64
	if err := row.Scan(&tag.ID, &tag.ProjectID, &tag.Name, &r, &g, &b, &tag.CreatedAt); err != nil {
		return Tag{}, err
	}
	if r.Valid && g.Valid && b.Valid {
		tag.Color = &Color{R: int(r.Int64), G: int(g.Int64), B: int(b.Int64)}
	}
	return tag, nil
}

func collectTags(rows *sql.Rows) ([]Tag, error) {
	items := make([]Tag, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, tag)
	}
	return items, rows.Err()
}

// uniqueTagNames trims names and drops blanks and duplicates, keeping order.
func uniqueTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
