package store

import "time"

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Membership struct {
	ProjectID string
	UserID    string
	Role      string
	CreatedAt time.Time
}

type Chat struct {
	ID        string
	ProjectID string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// ChatUser is a user taking part in a chat. Participation is separate from
// project membership and can be dropped at any time.
type ChatUser struct {
	ChatID      string
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Message struct {
	ID        string
	ChatID    string
	Content   string
	Role      string
	AuthorID  string
	CreatedAt time.Time
}

const (
	NoteStatusPending  = "pending"
	NoteStatusAccepted = "accepted"
	NoteStatusRejected = "rejected"
)

type Note struct {
	ID        string
	ProjectID string
	Title     string
	Body      string
	Status    string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Color is an RGB display colour; each channel is 0-255.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type Tag struct {
	ID        string
	ProjectID string
	Name      string
	Color     *Color
	CreatedAt time.Time
}

// OwnerKind discriminates what a note_tags row is attached to. A row is owned
// by exactly one note or exactly one pending proposal, never both.
type OwnerKind string

const (
	OwnerNote     OwnerKind = "note"
	OwnerProposal OwnerKind = "proposal"
)

type NoteTag struct {
	ID        string
	TagID     string
	OwnerKind OwnerKind
	OwnerID   string
}

type ProposalKind string

const (
	ProposalCreate ProposalKind = "create"
	ProposalUpdate ProposalKind = "update"
	ProposalDelete ProposalKind = "delete"
)

func (k ProposalKind) Valid() bool {
	switch k {
	case ProposalCreate, ProposalUpdate, ProposalDelete:
		return true
	default:
		return false
	}
}

// Proposal is a pending note operation. Optional text fields are stored as
// empty strings, never NULL.
type Proposal struct {
	ID        string
	ProjectID string
	AuthorID  string
	Kind      ProposalKind
	Match     string
	Title     string
	Body      string
	CreatedAt time.Time
}

type NoteWithTags struct {
	Note
	Tags []Tag
}

type ProposalWithTags struct {
	Proposal
	Tags []Tag
}

// ApplyOutcome describes what applying a proposal did to the note store.
type ApplyOutcome struct {
	ProposalID string
	Kind       ProposalKind
	NoteID     string
	// Matched is false when the proposal's target note did not exist.
	Matched bool
	// Folded is set when a create proposal landed on an existing note with the same title.
	Folded bool
	// RenameConflict is set when an update's new title belonged to another
	// note, so the note kept its title.
	RenameConflict bool
	LinksMoved     int
}

// TagSync reports the writes performed by ReconcileNoteTags.
type TagSync struct {
	Inserted int
	Deleted  int
}
