package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nexus/api/internal/export"
	"nexus/api/internal/notelog"
	"nexus/api/internal/rbac"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
	"nexus/api/internal/util"
)

type NoteInput struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Tags   []string `json:"tags"`
	Status string   `json:"status"`
}

var allowedNoteStatus = map[string]struct{}{
	store.NoteStatusPending:  {},
	store.NoteStatusAccepted: {},
	store.NoteStatusRejected: {},
}

func (s *Service) CreateNote(ctx context.Context, userID, projectID string, input NoteInput) (NoteView, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionWrite); err != nil {
		return NoteView{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return NoteView{}, errValidation("title is required")
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = store.NoteStatusAccepted
	}
	if _, ok := allowedNoteStatus[status]; !ok {
		return NoteView{}, errValidation("status must be pending, accepted or rejected")
	}

	note := store.Note{
		ID:        util.NewID("note"),
		ProjectID: projectID,
		Title:     title,
		Body:      input.Body,
		Status:    status,
		CreatedBy: userID,
	}
	if err := s.store.InsertNote(ctx, note, input.Tags); err != nil {
		if errors.Is(err, store.ErrTitleTaken) {
			return NoteView{}, errTitleTaken(title)
		}
		return NoteView{}, err
	}
	s.notesChanged(ctx, userID, projectID, "Create note: "+title, []string{note.ID}, nil)
	return s.noteView(ctx, note.ID)
}

// GetNote returns nil when the note is missing or the caller cannot see it.
func (s *Service) GetNote(ctx context.Context, userID, noteID string) (*NoteView, error) {
	note, err := s.store.GetNoteWithTags(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.isMember(ctx, userID, note.ProjectID) {
		return nil, nil
	}
	view := toNoteView(note)
	return &view, nil
}

// ListNotes lists a project's notes with their tags. An empty status lists all.
func (s *Service) ListNotes(ctx context.Context, userID, projectID, status string) ([]NoteView, error) {
	items := make([]NoteView, 0)
	if !s.isMember(ctx, userID, projectID) {
		return items, nil
	}
	notes, err := s.store.ListNotesWithTags(ctx, projectID, status)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		items = append(items, toNoteView(note))
	}
	return items, nil
}

func (s *Service) UpdateNoteBody(ctx context.Context, userID, noteID, body string) (NoteView, error) {
	note, err := s.noteForWrite(ctx, userID, noteID)
	if err != nil {
		return NoteView{}, err
	}
	if err := s.store.UpdateNoteBody(ctx, note.ID, body); err != nil {
		return NoteView{}, err
	}
	s.notesChanged(ctx, userID, note.ProjectID, "Edit note: "+note.Title, []string{note.ID}, nil)
	return s.noteView(ctx, note.ID)
}

func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	note, err := s.noteForWrite(ctx, userID, noteID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, note.ID); err != nil {
		return err
	}
	s.notesChanged(ctx, userID, note.ProjectID, "Delete note: "+note.Title, nil, []string{note.ID})
	return nil
}

// RemoveNoteByTitle deletes the note with this exact title. No match is a
// successful no-op and reports false.
func (s *Service) RemoveNoteByTitle(ctx context.Context, userID, projectID, title string) (bool, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionWrite); err != nil {
		return false, err
	}
	removed, err := s.store.RemoveNoteByTitle(ctx, projectID, strings.TrimSpace(title))
	if err != nil {
		return false, err
	}
	if removed == nil {
		return false, nil
	}
	s.notesChanged(ctx, userID, projectID, "Remove note: "+removed.Title, nil, []string{removed.ID})
	return true, nil
}

func (s *Service) AddNoteTag(ctx context.Context, userID, noteID, name string) (NoteView, error) {
	note, err := s.noteForWrite(ctx, userID, noteID)
	if err != nil {
		return NoteView{}, err
	}
	if _, err := s.store.AddNoteTag(ctx, note, name); err != nil {
		if errors.Is(err, store.ErrEmptyTagName) {
			return NoteView{}, errValidation("tag name is required")
		}
		return NoteView{}, err
	}
	s.notesChanged(ctx, userID, note.ProjectID, "Tag note: "+note.Title, []string{note.ID}, nil)
	return s.noteView(ctx, note.ID)
}

func (s *Service) RemoveNoteTag(ctx context.Context, userID, noteID, name string) (NoteView, error) {
	note, err := s.noteForWrite(ctx, userID, noteID)
	if err != nil {
		return NoteView{}, err
	}
	removed, err := s.store.RemoveNoteTag(ctx, note, name)
	if err != nil {
		return NoteView{}, err
	}
	if removed {
		s.notesChanged(ctx, userID, note.ProjectID, "Untag note: "+note.Title, []string{note.ID}, nil)
	}
	return s.noteView(ctx, note.ID)
}

// SetNoteTags makes the note's tags exactly the given names.
func (s *Service) SetNoteTags(ctx context.Context, userID, noteID string, names []string) (NoteView, error) {
	note, err := s.noteForWrite(ctx, userID, noteID)
	if err != nil {
		return NoteView{}, err
	}
	sync, err := s.store.ReconcileNoteTags(ctx, note, names)
	if err != nil {
		return NoteView{}, err
	}
	if sync.Inserted > 0 || sync.Deleted > 0 {
		s.notesChanged(ctx, userID, note.ProjectID, "Retag note: "+note.Title, []string{note.ID}, nil)
	}
	return s.noteView(ctx, note.ID)
}

// Graph links accepted notes to their tags. Tag nodes are keyed by name.
func (s *Service) Graph(ctx context.Context, userID, projectID string) (GraphView, error) {
	graph := GraphView{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	if !s.isMember(ctx, userID, projectID) {
		return graph, nil
	}
	notes, err := s.store.ListNotesWithTags(ctx, projectID, store.NoteStatusAccepted)
	if err != nil {
		return GraphView{}, err
	}

	seenTags := make(map[string]struct{})
	for _, note := range notes {
		noteNode := "note:" + note.ID
		graph.Nodes = append(graph.Nodes, GraphNode{ID: noteNode, Kind: "note", Label: note.Title})
		for _, tag := range note.Tags {
			tagNode := "tag:" + tag.Name
			if _, ok := seenTags[tag.Name]; !ok {
				seenTags[tag.Name] = struct{}{}
				graph.Nodes = append(graph.Nodes, GraphNode{ID: tagNode, Kind: "tag", Label: tag.Name, Color: tag.Color})
			}
			graph.Edges = append(graph.Edges, GraphEdge{
				ID:     "e:" + noteNode + "|" + tagNode,
				Source: noteNode,
				Target: tagNode,
			})
		}
	}
	return graph, nil
}

func (s *Service) SearchNotes(ctx context.Context, userID, projectID, text string, limit, offset int) (search.Response, error) {
	if !s.isMember(ctx, userID, projectID) {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{
		ProjectID: projectID,
		Text:      text,
		Limit:     limit,
		Offset:    offset,
	}), nil
}

// ReindexNotes pushes every note of the project to the search index.
func (s *Service) ReindexNotes(ctx context.Context, userID, projectID string) (int, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionManage); err != nil {
		return 0, err
	}
	notes, err := s.store.ListNotesWithTags(ctx, projectID, "")
	if err != nil {
		return 0, err
	}
	records := make([]search.NoteRecord, 0, len(notes))
	for _, note := range notes {
		records = append(records, search.RecordFromNote(note))
	}
	return s.search.ReindexProject(records), nil
}

func (s *Service) NoteHistory(ctx context.Context, userID, projectID string, limit int) ([]notelog.Commit, error) {
	if !s.isMember(ctx, userID, projectID) || s.notelog == nil {
		return []notelog.Commit{}, nil
	}
	return s.notelog.History(projectID, limit)
}

// NoteSnapshot returns nil when history is disabled or the caller cannot see the project.
func (s *Service) NoteSnapshot(ctx context.Context, userID, projectID, hash string) ([]notelog.File, error) {
	if !s.isMember(ctx, userID, projectID) || s.notelog == nil {
		return nil, nil
	}
	files, err := s.notelog.Snapshot(projectID, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sql.ErrNoRows, err)
	}
	return files, nil
}

// ExportProject returns nil for projects the caller cannot see.
func (s *Service) ExportProject(ctx context.Context, userID, projectID, format string) (*export.Result, error) {
	if !s.isMember(ctx, userID, projectID) {
		return nil, nil
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, errValidation("format must be markdown or json")
	}
	return s.exporter.Export(ctx, projectID, parsed)
}

// noteForWrite loads a note and checks the caller may modify its project.
func (s *Service) noteForWrite(ctx context.Context, userID, noteID string) (store.Note, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Note{}, errNotAuthenticated()
	}
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, errNotFound("Note")
	}
	if err != nil {
		return store.Note{}, err
	}
	if _, err := s.requireMember(ctx, userID, note.ProjectID, rbac.ActionWrite); err != nil {
		return store.Note{}, err
	}
	return note, nil
}

func (s *Service) noteView(ctx context.Context, noteID string) (NoteView, error) {
	note, err := s.store.GetNoteWithTags(ctx, noteID)
	if err != nil {
		return NoteView{}, err
	}
	return toNoteView(note), nil
}
