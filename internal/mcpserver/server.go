// Package mcpserver exposes the notes review workflow as MCP tools so an
// assistant can list notes and work through the proposal queue over stdio.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"nexus/api/internal/app"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Notes is the slice of the application service the tools call.
type Notes interface {
	UserByName(ctx context.Context, name string) (store.User, error)
	ListProjects(ctx context.Context, userID string) ([]app.ProjectView, error)
	ListNotes(ctx context.Context, userID, projectID, status string) ([]app.NoteView, error)
	SearchNotes(ctx context.Context, userID, projectID, text string, limit, offset int) (search.Response, error)
	ListProposals(ctx context.Context, userID, projectID string) ([]app.ProposalView, error)
	ApplyProposal(ctx context.Context, userID, proposalID string) (app.ApplyResult, error)
	RejectProposal(ctx context.Context, userID, proposalID string) error
}

// New registers every tool. All calls act as the user named userName.
func New(notes Notes, userName string) *server.MCPServer {
	s := server.NewMCPServer(
		"nexus-notes",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	projects := NewProjectsTool(notes, userName)
	s.AddTool(projects.Definition(), projects.Handle)

	list := NewNotesListTool(notes, userName)
	s.AddTool(list.Definition(), list.Handle)

	find := NewNotesSearchTool(notes, userName)
	s.AddTool(find.Definition(), find.Handle)

	queue := NewProposalsListTool(notes, userName)
	s.AddTool(queue.Definition(), queue.Handle)

	apply := NewProposalApplyTool(notes, userName)
	s.AddTool(apply.Definition(), apply.Handle)

	reject := NewProposalRejectTool(notes, userName)
	s.AddTool(reject.Definition(), reject.Handle)

	return s
}

const instructions = `Tools for a team's knowledge notes.
Notes are extracted from project chats as proposals. Use proposals_list to see the queue,
then proposal_apply or proposal_reject for each entry. notes_list and notes_search read accepted notes.`

// actor resolves the configured user on each call.
type actor struct {
	notes Notes
	name  string
}

func (a actor) userID(ctx context.Context) (string, error) {
	user, err := a.notes.UserByName(ctx, a.name)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
