package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"nexus/api/internal/app"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
)

type fakeNotes struct {
	users     map[string]string
	projects  []app.ProjectView
	notes     []app.NoteView
	proposals []app.ProposalView
	apply     app.ApplyResult
	applyErr  error
	rejected  []string
	gotUser   string
	gotStatus string
	gotLimit  int
}

func (f *fakeNotes) UserByName(_ context.Context, name string) (store.User, error) {
	id, ok := f.users[name]
	if !ok {
		return store.User{}, errors.New("no such user")
	}
	return store.User{ID: id, DisplayName: name}, nil
}

func (f *fakeNotes) ListProjects(_ context.Context, userID string) ([]app.ProjectView, error) {
	f.gotUser = userID
	return f.projects, nil
}

func (f *fakeNotes) ListNotes(_ context.Context, userID, _ string, status string) ([]app.NoteView, error) {
	f.gotUser = userID
	f.gotStatus = status
	return f.notes, nil
}

func (f *fakeNotes) SearchNotes(_ context.Context, userID, _ string, text string, limit, _ int) (search.Response, error) {
	f.gotUser = userID
	f.gotLimit = limit
	return search.Response{
		Results: []search.Result{{ID: "note_1", Title: "Project deadline", Snippet: "Deadline updated to Q3."}},
		Total:   1,
		Query:   text,
		Source:  search.SourceStore,
	}, nil
}

func (f *fakeNotes) ListProposals(_ context.Context, userID, _ string) ([]app.ProposalView, error) {
	f.gotUser = userID
	return f.proposals, nil
}

func (f *fakeNotes) ApplyProposal(_ context.Context, userID, _ string) (app.ApplyResult, error) {
	f.gotUser = userID
	return f.apply, f.applyErr
}

func (f *fakeNotes) RejectProposal(_ context.Context, userID, proposalID string) error {
	f.gotUser = userID
	f.rejected = append(f.rejected, proposalID)
	return nil
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func newFake() *fakeNotes {
	return &fakeNotes{users: map[string]string{"Avery": "user_avery"}}
}

func TestNotesListTool_Definition(t *testing.T) {
	def := NewNotesListTool(newFake(), "Avery").Definition()
	if def.Name != "notes_list" {
		t.Errorf("tool name = %q, want %q", def.Name, "notes_list")
	}
	if _, ok := def.InputSchema.Properties["status"]; !ok {
		t.Error("missing 'status' parameter")
	}
	found := false
	for _, r := range def.InputSchema.Required {
		if r == "project_id" {
			found = true
		}
	}
	if !found {
		t.Error("'project_id' should be required")
	}
}

func TestNotesListTool_DefaultsToAcceptedAndActsAsConfiguredUser(t *testing.T) {
	fake := newFake()
	fake.notes = []app.NoteView{{
		ID:    "note_1",
		Title: "Project deadline",
		Body:  "Currently set to Q2",
		Tags:  []app.TagView{{Name: "timeline"}, {Name: "deadline"}},
	}}
	tool := NewNotesListTool(fake, "Avery")

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"project_id": "prj_1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(result)
	if !strings.Contains(text, "Project deadline") || !strings.Contains(text, "timeline, deadline") {
		t.Errorf("unexpected output: %s", text)
	}
	if fake.gotUser != "user_avery" || fake.gotStatus != store.NoteStatusAccepted {
		t.Errorf("called with user=%q status=%q", fake.gotUser, fake.gotStatus)
	}

	_, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"project_id": "prj_1", "status": "all"}))
	if fake.gotStatus != "" {
		t.Errorf("status 'all' should list everything, got %q", fake.gotStatus)
	}
}

func TestNotesListTool_MissingProject(t *testing.T) {
	result, _ := NewNotesListTool(newFake(), "Avery").Handle(context.Background(), makeReq(map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error result without project_id")
	}
}

func TestNotesSearchTool_PassesLimit(t *testing.T) {
	fake := newFake()
	result, _ := NewNotesSearchTool(fake, "Avery").Handle(context.Background(), makeReq(map[string]interface{}{
		"project_id": "prj_1",
		"query":      "q3",
		"limit":      float64(3),
	}))
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}
	if fake.gotLimit != 3 {
		t.Errorf("limit = %d, want 3", fake.gotLimit)
	}
	if !strings.Contains(resultText(result), "Deadline updated to Q3.") {
		t.Errorf("unexpected output: %s", resultText(result))
	}
}

func TestProposalsListTool_ShowsRename(t *testing.T) {
	fake := newFake()
	fake.proposals = []app.ProposalView{{ID: "prop_1", Kind: "update", Match: "Deadline", Title: "Project deadline", Body: "Q3"}}
	result, _ := NewProposalsListTool(fake, "Avery").Handle(context.Background(), makeReq(map[string]interface{}{"project_id": "prj_1"}))
	text := resultText(result)
	if !strings.Contains(text, "update Deadline -> Project deadline (prop_1)") {
		t.Errorf("unexpected output: %s", text)
	}
}

func TestProposalApplyTool_Outcomes(t *testing.T) {
	fake := newFake()
	tool := NewProposalApplyTool(fake, "Avery")
	req := makeReq(map[string]interface{}{"proposal_id": "prop_1"})

	fake.apply = app.ApplyResult{ProposalID: "prop_1", Matched: true, Note: &app.NoteView{ID: "note_1", Title: "Project deadline"}}
	result, _ := tool.Handle(context.Background(), req)
	if !strings.Contains(resultText(result), `applied to note "Project deadline"`) {
		t.Errorf("unexpected output: %s", resultText(result))
	}

	fake.apply = app.ApplyResult{ProposalID: "prop_1", Matched: true, RenameConflict: true, Note: &app.NoteView{ID: "note_1", Title: "Deadline"}}
	result, _ = tool.Handle(context.Background(), req)
	if !strings.Contains(resultText(result), "kept its title") {
		t.Errorf("unexpected output: %s", resultText(result))
	}

	fake.apply = app.ApplyResult{ProposalID: "prop_1"}
	result, _ = tool.Handle(context.Background(), req)
	if !strings.Contains(resultText(result), "nothing changed") {
		t.Errorf("unexpected output: %s", resultText(result))
	}

	fake.applyErr = errors.New("db down")
	result, _ = tool.Handle(context.Background(), req)
	if !result.IsError || !strings.Contains(resultText(result), "db down") {
		t.Errorf("expected error result, got %s", resultText(result))
	}
}

func TestProposalRejectTool(t *testing.T) {
	fake := newFake()
	result, _ := NewProposalRejectTool(fake, "Avery").Handle(context.Background(), makeReq(map[string]interface{}{"proposal_id": "prop_9"}))
	if result.IsError || len(fake.rejected) != 1 || fake.rejected[0] != "prop_9" {
		t.Errorf("unexpected reject outcome: %s %+v", resultText(result), fake.rejected)
	}
}

func TestUnknownUserIsReported(t *testing.T) {
	result, _ := NewProjectsTool(newFake(), "Nobody").Handle(context.Background(), makeReq(nil))
	if !result.IsError || !strings.Contains(resultText(result), "resolve user") {
		t.Errorf("expected resolve error, got %s", resultText(result))
	}
}

func TestNewBuildsServer(t *testing.T) {
	if New(newFake(), "Avery") == nil {
		t.Fatal("expected server")
	}
}
