package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"nexus/api/internal/store"
)

// ProjectsTool handles the projects_list MCP tool.
type ProjectsTool struct {
	notes Notes
	actor actor
}

func NewProjectsTool(notes Notes, userName string) *ProjectsTool {
	return &ProjectsTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *ProjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("projects_list",
		mcp.WithDescription("List the projects you are a member of, with their IDs."),
	)
}

func (t *ProjectsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	projects, err := t.notes.ListProjects(ctx, userID)
	if err != nil {
		return errorResult("list projects", err), nil
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d projects:\n\n", len(projects))
	for _, project := range projects {
		fmt.Fprintf(&b, "- %s (%s) role: %s\n", project.Name, project.ID, project.Role)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// NotesListTool handles the notes_list MCP tool.
type NotesListTool struct {
	notes Notes
	actor actor
}

func NewNotesListTool(notes Notes, userName string) *NotesListTool {
	return &NotesListTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *NotesListTool) Definition() mcp.Tool {
	return mcp.NewTool("notes_list",
		mcp.WithDescription("List a project's notes with their tags."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project ID from projects_list"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by status: accepted (default), pending, rejected, or all"),
		),
	)
}

func (t *NotesListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	status := req.GetString("status", store.NoteStatusAccepted)
	if status == "all" {
		status = ""
	}

	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	notes, err := t.notes.ListNotes(ctx, userID, projectID, status)
	if err != nil {
		return errorResult("list notes", err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d notes:\n\n", len(notes))
	for i, note := range notes {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    tags: %s\n    %s\n\n",
			i+1, note.Title, note.ID, tagList(note.Tags), truncate(note.Body, 300))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// NotesSearchTool handles the notes_search MCP tool.
type NotesSearchTool struct {
	notes Notes
	actor actor
}

func NewNotesSearchTool(notes Notes, userName string) *NotesSearchTool {
	return &NotesSearchTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *NotesSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("notes_search",
		mcp.WithDescription("Full-text search over a project's notes."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project ID from projects_list"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to look for in note titles, bodies and tags"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10, max: 100)"),
		),
	)
}

func (t *NotesSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	query := req.GetString("query", "")
	if projectID == "" || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'project_id' and 'query' are required"), nil
	}

	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	response, err := t.notes.SearchNotes(ctx, userID, projectID, query, intArg(req, "limit", 10), 0)
	if err != nil {
		return errorResult("search", err), nil
	}
	if len(response.Results) == 0 {
		return mcp.NewToolResultText("No notes found matching your query."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d notes (source: %s):\n\n", response.Total, response.Source)
	for i, hit := range response.Results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n    %s\n\n", i+1, hit.Title, hit.ID, hit.Snippet)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ProposalsListTool handles the proposals_list MCP tool.
type ProposalsListTool struct {
	notes Notes
	actor actor
}

func NewProposalsListTool(notes Notes, userName string) *ProposalsListTool {
	return &ProposalsListTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *ProposalsListTool) Definition() mcp.Tool {
	return mcp.NewTool("proposals_list",
		mcp.WithDescription("List your pending note proposals in a project, oldest first."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project ID from projects_list"),
		),
	)
}

func (t *ProposalsListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := req.GetString("project_id", "")
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}

	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	proposals, err := t.notes.ListProposals(ctx, userID, projectID)
	if err != nil {
		return errorResult("list proposals", err), nil
	}
	if len(proposals) == 0 {
		return mcp.NewToolResultText("No pending proposals."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d pending proposals:\n\n", len(proposals))
	for i, proposal := range proposals {
		target := proposal.Title
		if proposal.Match != "" && proposal.Match != proposal.Title {
			target = proposal.Match + " -> " + proposal.Title
		}
		fmt.Fprintf(&b, "[%d] %s %s (%s)\n    tags: %s\n    %s\n\n",
			i+1, proposal.Kind, strings.TrimSpace(target), proposal.ID, tagList(proposal.Tags), truncate(proposal.Body, 300))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ProposalApplyTool handles the proposal_apply MCP tool.
type ProposalApplyTool struct {
	notes Notes
	actor actor
}

func NewProposalApplyTool(notes Notes, userName string) *ProposalApplyTool {
	return &ProposalApplyTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *ProposalApplyTool) Definition() mcp.Tool {
	return mcp.NewTool("proposal_apply",
		mcp.WithDescription("Accept a pending proposal and write it into the project's notes."),
		mcp.WithString("proposal_id",
			mcp.Required(),
			mcp.Description("Proposal ID from proposals_list"),
		),
	)
}

func (t *ProposalApplyTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposalID := req.GetString("proposal_id", "")
	if proposalID == "" {
		return mcp.NewToolResultError("'proposal_id' is required"), nil
	}

	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	result, err := t.notes.ApplyProposal(ctx, userID, proposalID)
	if err != nil {
		return errorResult("apply", err), nil
	}

	switch {
	case !result.Matched:
		return mcp.NewToolResultText(fmt.Sprintf("Proposal %s applied; no matching note, nothing changed.", proposalID)), nil
	case result.Note == nil:
		return mcp.NewToolResultText(fmt.Sprintf("Proposal %s applied; note removed.", proposalID)), nil
	case result.RenameConflict:
		return mcp.NewToolResultText(fmt.Sprintf("Proposal %s applied to note %q; the new title was taken, so the note kept its title.", proposalID, result.Note.Title)), nil
	case result.Folded:
		return mcp.NewToolResultText(fmt.Sprintf("Proposal %s merged into existing note %q.", proposalID, result.Note.Title)), nil
	default:
		return mcp.NewToolResultText(fmt.Sprintf("Proposal %s applied to note %q (%s).", proposalID, result.Note.Title, result.Note.ID)), nil
	}
}

// ProposalRejectTool handles the proposal_reject MCP tool.
type ProposalRejectTool struct {
	notes Notes
	actor actor
}

func NewProposalRejectTool(notes Notes, userName string) *ProposalRejectTool {
	return &ProposalRejectTool{notes: notes, actor: actor{notes: notes, name: userName}}
}

func (t *ProposalRejectTool) Definition() mcp.Tool {
	return mcp.NewTool("proposal_reject",
		mcp.WithDescription("Discard a pending proposal without touching any note."),
		mcp.WithString("proposal_id",
			mcp.Required(),
			mcp.Description("Proposal ID from proposals_list"),
		),
	)
}

func (t *ProposalRejectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposalID := req.GetString("proposal_id", "")
	if proposalID == "" {
		return mcp.NewToolResultError("'proposal_id' is required"), nil
	}

	userID, err := t.actor.userID(ctx)
	if err != nil {
		return errorResult("resolve user", err), nil
	}
	if err := t.notes.RejectProposal(ctx, userID, proposalID); err != nil {
		return errorResult("reject", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Proposal %s rejected.", proposalID)), nil
}
