package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"nexus/api/internal/chatlock"
	"nexus/api/internal/llm"
	"nexus/api/internal/rbac"
	"nexus/api/internal/reconcile"
	"nexus/api/internal/store"
	"nexus/api/internal/util"
)

func (s *Service) CreateChat(ctx context.Context, userID, projectID, name string) (ChatView, error) {
	if _, err := s.requireMember(ctx, userID, projectID, rbac.ActionWrite); err != nil {
		return ChatView{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New chat"
	}
	chat := store.Chat{
		ID:        util.NewID("chat"),
		ProjectID: projectID,
		Name:      name,
		CreatedBy: userID,
	}
	if err := s.store.InsertChat(ctx, chat); err != nil {
		return ChatView{}, err
	}
	created, err := s.store.GetChat(ctx, chat.ID)
	if err != nil {
		return ChatView{}, err
	}
	return toChatView(created), nil
}

func (s *Service) ListChats(ctx context.Context, userID, projectID string) ([]ChatView, error) {
	items := make([]ChatView, 0)
	if !s.isMember(ctx, userID, projectID) {
		return items, nil
	}
	chats, err := s.store.ListChats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, chat := range chats {
		items = append(items, toChatView(chat))
	}
	return items, nil
}

// GetChat returns nil when the chat is missing or the caller cannot see it.
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*ChatView, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.isMember(ctx, userID, chat.ProjectID) {
		return nil, nil
	}
	view := toChatView(chat)
	return &view, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, chatID string) ([]MessageView, error) {
	items := make([]MessageView, 0)
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return items, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.isMember(ctx, userID, chat.ProjectID) {
		return items, nil
	}
	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		items = append(items, toMessageView(message))
	}
	return items, nil
}

// ListChatUsers returns the chat's participants, or nothing when the caller
// cannot see the chat.
func (s *Service) ListChatUsers(ctx context.Context, userID, chatID string, limit int) ([]ChatUserView, error) {
	items := make([]ChatUserView, 0)
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return items, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.isMember(ctx, userID, chat.ProjectID) {
		return items, nil
	}
	users, err := s.store.ListChatUsers(ctx, chat.ID, limit)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		items = append(items, toChatUserView(user))
	}
	return items, nil
}

// JoinChat adds the caller to the chat's participants. Only project members
// may join; joining again changes nothing.
func (s *Service) JoinChat(ctx context.Context, userID, chatID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, errNotAuthenticated()
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errNotFound("Chat")
	}
	if err != nil {
		return false, err
	}
	if _, err := s.requireMember(ctx, userID, chat.ProjectID, rbac.ActionRead); err != nil {
		return false, err
	}
	return s.store.JoinChat(ctx, chat.ID, userID)
}

// LeaveChat removes the caller from the chat. It needs no membership so a
// user dropped from the project can still clean up.
func (s *Service) LeaveChat(ctx context.Context, userID, chatID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, errNotAuthenticated()
	}
	return s.store.LeaveChat(ctx, chatID, userID)
}

// LeaveAllChats drops the caller from every chat, or from the chats of one
// project when projectID is set. It returns how many were left.
func (s *Service) LeaveAllChats(ctx context.Context, userID, projectID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errNotAuthenticated()
	}
	if projectID = strings.TrimSpace(projectID); projectID != "" {
		return s.store.LeaveAllChatsInProject(ctx, userID, projectID)
	}
	return s.store.LeaveAllChats(ctx, userID)
}

// RemoveMessage deletes one of the caller's own user messages. A missing
// message is a no-op.
func (s *Service) RemoveMessage(ctx context.Context, userID, messageID string) error {
	if strings.TrimSpace(userID) == "" {
		return errNotAuthenticated()
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	chat, err := s.store.GetChat(ctx, message.ChatID)
	if err != nil {
		return err
	}
	if _, err := s.requireMember(ctx, userID, chat.ProjectID, rbac.ActionWrite); err != nil {
		return err
	}
	if message.Role != store.MessageRoleUser || message.AuthorID != userID {
		return errForbidden()
	}
	return s.store.DeleteMessage(ctx, message.ID)
}

// SendMessage runs one chat turn: persist the user message, ask the
// completion endpoint for a reply, persist the reply, then reconcile notes.
// A failed completion removes the user message again and reports a generic
// error. Reconciliation never affects the result.
func (s *Service) SendMessage(ctx context.Context, userID, chatID, content string) (MessageView, error) {
	if strings.TrimSpace(userID) == "" {
		return MessageView{}, errNotAuthenticated()
	}
	if strings.TrimSpace(content) == "" {
		return MessageView{}, errValidation("content is required")
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return MessageView{}, errNotFound("Chat")
	}
	if err != nil {
		return MessageView{}, err
	}
	if _, err := s.requireMember(ctx, userID, chat.ProjectID, rbac.ActionWrite); err != nil {
		return MessageView{}, err
	}
	if s.completer == nil {
		return MessageView{}, errAIResponse()
	}

	release, err := s.locker.Acquire(ctx, chat.ID)
	if errors.Is(err, chatlock.ErrBusy) {
		return MessageView{}, errChatBusy()
	}
	if err != nil {
		return MessageView{}, err
	}
	defer release()

	userMessage := store.Message{
		ID:       util.NewID("msg"),
		ChatID:   chat.ID,
		Content:  content,
		Role:     store.MessageRoleUser,
		AuthorID: userID,
	}
	if err := s.store.InsertMessage(ctx, userMessage); err != nil {
		return MessageView{}, err
	}

	reply, err := s.completeReply(ctx, chat.ID)
	if err != nil {
		log.Printf("chat: completion failed chat=%s: %v", chat.ID, err)
		s.rollbackMessage(ctx, userMessage.ID)
		return MessageView{}, errAIResponse()
	}

	assistant := store.Message{
		ID:      util.NewID("msg"),
		ChatID:  chat.ID,
		Content: reply,
		Role:    store.MessageRoleAssistant,
	}
	if err := s.store.InsertMessage(ctx, assistant); err != nil {
		log.Printf("chat: persist reply failed chat=%s: %v", chat.ID, err)
		s.rollbackMessage(ctx, userMessage.ID)
		return MessageView{}, errAIResponse()
	}
	saved, err := s.store.GetMessage(ctx, assistant.ID)
	if err != nil {
		return MessageView{}, err
	}
	if _, err := s.store.JoinChat(ctx, chat.ID, userID); err != nil {
		log.Printf("chat: join sender chat=%s user=%s: %v", chat.ID, userID, err)
	}

	s.reconcileTurn(ctx, reconcile.Turn{
		UserID:        userID,
		ProjectID:     chat.ProjectID,
		ChatID:        chat.ID,
		LatestMessage: content,
	})
	return toMessageView(saved), nil
}

func (s *Service) completeReply(ctx context.Context, chatID string) (string, error) {
	transcript, err := s.transcript(ctx, chatID)
	if err != nil {
		return "", err
	}
	messages := transcript
	if prompt := strings.TrimSpace(s.cfg.ChatSystemPrompt); prompt != "" {
		messages = append([]llm.Message{{Role: llm.RoleSystem, Content: prompt}}, transcript...)
	}

	callCtx, cancel := s.llmContext(ctx)
	defer cancel()
	return s.completer.Complete(callCtx, messages, s.cfg.ReplyTemperature)
}

// rollbackMessage runs even when the request context is already done.
func (s *Service) rollbackMessage(ctx context.Context, messageID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.DeleteMessage(cleanupCtx, messageID); err != nil {
		log.Printf("chat: rollback of message %s failed: %v", messageID, err)
		return
	}
	log.Printf("chat: rolled back message %s", messageID)
}

// reconcileTurn is best effort: errors and panics are logged, never returned.
func (s *Service) reconcileTurn(ctx context.Context, turn reconcile.Turn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("reconcile: chat=%s panic: %v", turn.ChatID, r)
		}
	}()
	runCtx, cancel := s.llmContext(context.WithoutCancel(ctx))
	defer cancel()

	result, err := s.engine.Run(runCtx, turn)
	if err != nil {
		log.Printf("reconcile: chat=%s skipped: %v", turn.ChatID, err)
		return
	}
	log.Printf("reconcile: chat=%s created=%d updated=%d deleted=%d missing=%d skipped=%d",
		turn.ChatID, result.Created, result.Updated, result.Deleted, result.Missing, result.Skipped)
}

func (s *Service) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.LLMTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.LLMTimeout)
}

func (s *Service) transcript(ctx context.Context, chatID string) ([]llm.Message, error) {
	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	items := make([]llm.Message, 0, len(messages))
	for _, message := range messages {
		items = append(items, llm.Message{Role: message.Role, Content: message.Content})
	}
	return items, nil
}

// reconcileBridge feeds the engine from the service and routes its output
// back through the guarded service operations.
type reconcileBridge struct {
	service *Service
}

func (b reconcileBridge) Transcript(ctx context.Context, chatID string) ([]llm.Message, error) {
	return b.service.transcript(ctx, chatID)
}

func (b reconcileBridge) AcceptedNotes(ctx context.Context, userID, projectID string) ([]reconcile.NoteContext, error) {
	notes, err := b.service.ListNotes(ctx, userID, projectID, store.NoteStatusAccepted)
	if err != nil {
		return nil, err
	}
	items := make([]reconcile.NoteContext, 0, len(notes))
	for _, note := range notes {
		tags := make([]string, 0, len(note.Tags))
		for _, tag := range note.Tags {
			tags = append(tags, tag.Name)
		}
		items = append(items, reconcile.NoteContext{Title: note.Title, Body: note.Body, Tags: tags})
	}
	return items, nil
}

func (b reconcileBridge) EnqueueProposal(ctx context.Context, userID, projectID string, input reconcile.ProposalInput) (string, error) {
	proposal, err := b.service.EnqueueProposal(ctx, userID, projectID, ProposalInput{
		Kind:  string(input.Kind),
		Match: input.Match,
		Title: input.Title,
		Body:  input.Body,
		Tags:  input.Tags,
	})
	if err != nil {
		return "", err
	}
	return proposal.ID, nil
}

func (b reconcileBridge) RemoveNoteByTitle(ctx context.Context, userID, projectID, title string) (bool, error) {
	return b.service.RemoveNoteByTitle(ctx, userID, projectID, title)
}
