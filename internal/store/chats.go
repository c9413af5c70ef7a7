package store

import (
	"context"
	"fmt"
)

func (s *SQLStore) InsertChat(ctx context.Context, chat Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO chats (id, project_id, name, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, chat.ID, chat.ProjectID, chat.Name, chat.CreatedBy, chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func (s *SQLStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	var chat Chat
	err := s.q.QueryRowContext(ctx, `
		SELECT id, project_id, name, created_by, created_at FROM chats WHERE id=$1
	`, chatID).Scan(&chat.ID, &chat.ProjectID, &chat.Name, &chat.CreatedBy, &chat.CreatedAt)
	if err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// ListChats returns a project's chats newest first.
func (s *SQLStore) ListChats(ctx context.Context, projectID string) ([]Chat, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, project_id, name, created_by, created_at
		FROM chats WHERE project_id=$1
		ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	items := make([]Chat, 0)
	for rows.Next() {
		var chat Chat
		if err := rows.Scan(&chat.ID, &chat.ProjectID, &chat.Name, &chat.CreatedBy, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		items = append(items, chat)
	}
	return items, rows.Err()
}

func (s *SQLStore) InsertMessage(ctx context.Context, message Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, content, role, author_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, message.ID, message.ChatID, message.Content, message.Role, message.AuthorID, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var message Message
	err := s.q.QueryRowContext(ctx, `
		SELECT id, chat_id, content, role, author_id, created_at FROM messages WHERE id=$1
	`, messageID).Scan(&message.ID, &message.ChatID, &message.Content, &message.Role, &message.AuthorID, &message.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return message, nil
}

// ListMessages returns the transcript in creation order.
func (s *SQLStore) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, chat_id, content, role, author_id, created_at
		FROM messages WHERE chat_id=$1
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.ChatID, &message.Content, &message.Role, &message.AuthorID, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, message)
	}
	return items, rows.Err()
}

// DeleteMessage is idempotent: deleting a missing message succeeds.
func (s *SQLStore) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// JoinChat records the user as a chat participant. Joining twice is a no-op
// reported as not joined.
func (s *SQLStore) JoinChat(ctx context.Context, chatID, userID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO chat_users (chat_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, chatID, userID, now())
	if err != nil {
		return false, fmt.Errorf("join chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("join chat rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) LeaveChat(ctx context.Context, chatID, userID string) (bool, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM chat_users WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("leave chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("leave chat rows affected: %w", err)
	}
	return affected > 0, nil
}

// LeaveAllChats drops every participation of the user and returns how many
// were removed.
func (s *SQLStore) LeaveAllChats(ctx context.Context, userID string) (int, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM chat_users WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("leave all chats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("leave all chats rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *SQLStore) LeaveAllChatsInProject(ctx context.Context, userID, projectID string) (int, error) {
	result, err := s.q.ExecContext(ctx, `
		DELETE FROM chat_users
		WHERE user_id=$1 AND chat_id IN (SELECT id FROM chats WHERE project_id=$2)
	`, userID, projectID)
	if err != nil {
		return 0, fmt.Errorf("leave project chats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("leave project chats rows affected: %w", err)
	}
	return int(affected), nil
}

// ListChatUsers returns the chat's participants in join order. A limit of
// zero or less returns all of them.
func (s *SQLStore) ListChatUsers(ctx context.Context, chatID string, limit int) ([]ChatUser, error) {
	query := `
		SELECT cu.chat_id, cu.user_id, u.display_name, cu.joined_at
		FROM chat_users cu
		JOIN users u ON u.id = cu.user_id
		WHERE cu.chat_id=$1
		ORDER BY cu.joined_at ASC, cu.user_id ASC
	`
	args := []any{chatID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat users: %w", err)
	}
	defer rows.Close()

	items := make([]ChatUser, 0)
	for rows.Next() {
		var user ChatUser
		if err := rows.Scan(&user.ChatID, &user.UserID, &user.DisplayName, &user.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan chat user: %w", err)
		}
		items = append(items, user)
	}
	return items, rows.Err()
}
