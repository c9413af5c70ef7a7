package app

import (
	"time"

	"nexus/api/internal/store"
)

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	JTI       string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ProjectView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Role        string    `json:"role"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MemberView struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type ChatView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatUserView struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

type MessageView struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type TagView struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Color *store.Color `json:"color"`
}

type NoteView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	Tags      []TagView `json:"tags"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ProposalView struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	AuthorID  string    `json:"authorId"`
	Kind      string    `json:"kind"`
	Match     string    `json:"match"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tags      []TagView `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

type ApplyResult struct {
	ProposalID     string    `json:"proposalId"`
	Kind           string    `json:"kind"`
	Matched        bool      `json:"matched"`
	Folded         bool      `json:"folded"`
	RenameConflict bool      `json:"renameConflict"`
	Note           *NoteView `json:"note"`
}

type GraphNode struct {
	ID    string       `json:"id"`
	Kind  string       `json:"kind"`
	Label string       `json:"label"`
	Color *store.Color `json:"color,omitempty"`
}

type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

func toProjectView(project store.Project, role string) ProjectView {
	return ProjectView{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Role:        role,
		CreatedBy:   project.CreatedBy,
		CreatedAt:   project.CreatedAt,
	}
}

func toChatView(chat store.Chat) ChatView {
	return ChatView{
		ID:        chat.ID,
		ProjectID: chat.ProjectID,
		Name:      chat.Name,
		CreatedBy: chat.CreatedBy,
		CreatedAt: chat.CreatedAt,
	}
}

func toChatUserView(user store.ChatUser) ChatUserView {
	return ChatUserView{
		UserID:   user.UserID,
		Name:     user.DisplayName,
		JoinedAt: user.JoinedAt,
	}
}

func toMessageView(message store.Message) MessageView {
	return MessageView{
		ID:        message.ID,
		ChatID:    message.ChatID,
		Role:      message.Role,
		Content:   message.Content,
		AuthorID:  message.AuthorID,
		CreatedAt: message.CreatedAt,
	}
}

func toTagViews(tags []store.Tag) []TagView {
	items := make([]TagView, 0, len(tags))
	for _, tag := range tags {
		items = append(items, TagView{ID: tag.ID, Name: tag.Name, Color: tag.Color})
	}
	return items
}

func toNoteView(note store.NoteWithTags) NoteView {
	return NoteView{
		ID:        note.ID,
		ProjectID: note.ProjectID,
		Title:     note.Title,
		Body:      note.Body,
		Status:    note.Status,
		Tags:      toTagViews(note.Tags),
		CreatedBy: note.CreatedBy,
		CreatedAt: note.CreatedAt,
		UpdatedAt: note.UpdatedAt,
	}
}

func toProposalView(proposal store.ProposalWithTags) ProposalView {
	return ProposalView{
		ID:        proposal.ID,
		ProjectID: proposal.ProjectID,
		AuthorID:  proposal.AuthorID,
		Kind:      string(proposal.Kind),
		Match:     proposal.Match,
		Title:     proposal.Title,
		Body:      proposal.Body,
		Tags:      toTagViews(proposal.Tags),
		CreatedAt: proposal.CreatedAt,
	}
}
