package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"nexus/api/internal/auth"
	"nexus/api/internal/chatlock"
	"nexus/api/internal/config"
	"nexus/api/internal/export"
	"nexus/api/internal/llm"
	"nexus/api/internal/notelog"
	"nexus/api/internal/rbac"
	"nexus/api/internal/reconcile"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
	"nexus/api/internal/util"
)

type dataStore interface {
	Ping(ctx context.Context) error
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjectsForUser(context.Context, string) ([]store.Project, error)
	GetMembership(context.Context, string, string) (store.Membership, error)
	AddMember(context.Context, store.Membership) (bool, error)
	ListMembers(context.Context, string) ([]store.Membership, error)
	InsertChat(context.Context, store.Chat) error
	GetChat(context.Context, string) (store.Chat, error)
	ListChats(context.Context, string) ([]store.Chat, error)
	JoinChat(context.Context, string, string) (bool, error)
	LeaveChat(context.Context, string, string) (bool, error)
	LeaveAllChats(context.Context, string) (int, error)
	LeaveAllChatsInProject(context.Context, string, string) (int, error)
	ListChatUsers(context.Context, string, int) ([]store.ChatUser, error)
	InsertMessage(context.Context, store.Message) error
	GetMessage(context.Context, string) (store.Message, error)
	ListMessages(context.Context, string) ([]store.Message, error)
	DeleteMessage(context.Context, string) error
	EnsureTag(context.Context, string, string) (store.Tag, error)
	GetTag(context.Context, string) (store.Tag, error)
	ListTags(context.Context, string) ([]store.Tag, error)
	SetTagColor(context.Context, string, store.Color) error
	InsertNote(context.Context, store.Note, []string) error
	GetNote(context.Context, string) (store.Note, error)
	GetNoteWithTags(context.Context, string) (store.NoteWithTags, error)
	ListNotesWithTags(context.Context, string, string) ([]store.NoteWithTags, error)
	UpdateNoteBody(context.Context, string, string) error
	DeleteNote(context.Context, string) error
	RemoveNoteByTitle(context.Context, string, string) (*store.Note, error)
	AddNoteTag(context.Context, store.Note, string) (store.Tag, error)
	RemoveNoteTag(context.Context, store.Note, string) (bool, error)
	ReconcileNoteTags(context.Context, store.Note, []string) (store.TagSync, error)
	SearchNotes(context.Context, string, string, int, int) ([]store.NoteWithTags, int, error)
	InsertProposal(context.Context, store.Proposal, []string) error
	GetProposal(context.Context, string) (store.Proposal, error)
	GetProposalWithTags(context.Context, string) (store.ProposalWithTags, error)
	ListProposals(context.Context, string, string) ([]store.ProposalWithTags, error)
	ApplyProposal(context.Context, string) (store.ApplyOutcome, error)
	RejectProposal(context.Context, string) error
}

// Completer is the chat-completion endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error)
}

// Deps are the optional collaborators of the service. Nil fields fall back to
// in-process defaults or disable the feature.
type Deps struct {
	Completer Completer
	Locker    chatlock.Locker
	Search    *search.Service
	NoteLog   *notelog.Service
	Archiver  reconcile.Archiver
}

type Service struct {
	cfg       config.Config
	store     dataStore
	completer Completer
	locker    chatlock.Locker
	search    *search.Service
	notelog   *notelog.Service
	exporter  *export.Service
	engine    *reconcile.Engine
}

func New(cfg config.Config, dataStore *store.SQLStore, deps Deps) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		completer: deps.Completer,
		locker:    deps.Locker,
		search:    deps.Search,
		notelog:   deps.NoteLog,
		exporter:  export.NewService(dataStore),
	}
	if s.locker == nil {
		s.locker = chatlock.NewLocalLock()
	}
	if s.search == nil {
		s.search = search.NewService(nil, search.NewStoreFallback(dataStore))
	}
	bridge := reconcileBridge{service: s}
	s.engine = reconcile.New(deps.Completer, bridge, bridge, reconcile.Options{
		Temperature: cfg.ExtractTemperature,
		Archiver:    deps.Archiver,
	})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds a sample project for a fresh install when enabled.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.cfg.BootstrapSample {
		return nil
	}
	user, err := s.store.EnsureUserByName(ctx, "Avery")
	if err != nil {
		return err
	}
	projects, err := s.store.ListProjectsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(projects) > 0 {
		return nil
	}

	project, err := s.CreateProject(ctx, user.ID, "Apollo Launch", "Sample project")
	if err != nil {
		return err
	}
	if _, err := s.CreateNote(ctx, user.ID, project.ID, NoteInput{
		Title: "Project deadline",
		Body:  "Currently set to Q2",
		Tags:  []string{"timeline", "deadline"},
	}); err != nil {
		return err
	}
	_, err = s.CreateChat(ctx, user.ID, project.ID, "Planning")
	return err
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		return Session{}, errValidation("name is required")
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// UserByName resolves a user for callers that act under a configured name.
func (s *Service) UserByName(ctx context.Context, name string) (store.User, error) {
	if strings.TrimSpace(name) == "" {
		return store.User{}, errValidation("user name is required")
	}
	return s.store.EnsureUserByName(ctx, name)
}

// requireMember is the guard every mutation runs first.
func (s *Service) requireMember(ctx context.Context, userID, projectID string, action rbac.Action) (store.Membership, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Membership{}, errNotAuthenticated()
	}
	membership, err := s.store.GetMembership(ctx, projectID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Membership{}, errForbidden()
	}
	if err != nil {
		return store.Membership{}, fmt.Errorf("lookup membership: %w", err)
	}
	if !rbac.Can(rbac.Normalize(membership.Role), action) {
		return store.Membership{}, errForbidden()
	}
	return membership, nil
}

// isMember is the guard for queries: any failure reads as "not a member" so
// queries can answer with an empty result instead of an error.
func (s *Service) isMember(ctx context.Context, userID, projectID string) bool {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectID) == "" {
		return false
	}
	membership, err := s.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("guard: membership lookup project=%s user=%s: %v", projectID, userID, err)
		}
		return false
	}
	return rbac.Can(rbac.Normalize(membership.Role), rbac.ActionRead)
}

// notesChanged pushes note mutations to the search index and the history
// mirror. Both are best effort.
func (s *Service) notesChanged(ctx context.Context, userID, projectID, message string, upserted, deleted []string) {
	for _, noteID := range upserted {
		note, err := s.store.GetNoteWithTags(ctx, noteID)
		if err != nil {
			log.Printf("notes: reload %s for index: %v", noteID, err)
			continue
		}
		s.search.IndexNote(search.RecordFromNote(note))
	}
	for _, noteID := range deleted {
		s.search.DeleteNote(noteID)
	}

	if s.notelog == nil {
		return
	}
	notes, err := s.store.ListNotesWithTags(ctx, projectID, store.NoteStatusAccepted)
	if err != nil {
		log.Printf("notelog: list notes project=%s: %v", projectID, err)
		return
	}
	items := make([]export.Note, 0, len(notes))
	for _, note := range notes {
		items = append(items, export.NoteFromStore(note))
	}
	author := userID
	if user, err := s.store.GetUserByID(ctx, userID); err == nil {
		author = user.DisplayName
	}
	if _, err := s.notelog.Record(projectID, items, author, message); err != nil {
		log.Printf("notelog: record project=%s: %v", projectID, err)
	}
}
