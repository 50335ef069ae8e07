package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const conversationColumns = `
	c.id, c.participant_low, c.participant_high, COALESCE(c.participant_data::text, '{}'),
	c.last_message, c.last_message_at, c.last_sender_id, c.created_at,
	COALESCE((SELECT json_object_agg(m.user_id, m.unread_count) FROM conversation_members m WHERE m.conversation_id = c.id)::text, '{}'),
	COALESCE((SELECT json_object_agg(m.user_id, m.deleted) FROM conversation_members m WHERE m.conversation_id = c.id)::text, '{}')
`

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		item    Conversation
		data    string
		unread  string
		deleted string
	)
	if err := row.Scan(
		&item.ID,
		&item.Participants[0],
		&item.Participants[1],
		&data,
		&item.LastMessage,
		&item.LastMessageAt,
		&item.LastSenderID,
		&item.CreatedAt,
		&unread,
		&deleted,
	); err != nil {
		return Conversation{}, err
	}
	item.ParticipantData = map[string]ParticipantData{}
	item.UnreadCount = map[string]int{}
	item.Deleted = map[string]bool{}
	if err := json.Unmarshal([]byte(data), &item.ParticipantData); err != nil {
		return Conversation{}, fmt.Errorf("decode participant data: %w", err)
	}
	if err := json.Unmarshal([]byte(unread), &item.UnreadCount); err != nil {
		return Conversation{}, fmt.Errorf("decode unread counts: %w", err)
	}
	if err := json.Unmarshal([]byte(deleted), &item.Deleted); err != nil {
		return Conversation{}, fmt.Errorf("decode deleted flags: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id=$1`, conversationID))
}

func (s *PostgresStore) FindConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	pair := SortedPair(userA, userB)
	return scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.participant_low=$1 AND c.participant_high=$2
	`, pair[0], pair[1]))
}

// CreateConversation inserts the conversation unless one already exists for
// the pair, then returns whichever row won.
func (s *PostgresStore) CreateConversation(ctx context.Context, item Conversation) (Conversation, error) {
	pair := SortedPair(item.Participants[0], item.Participants[1])
	data, err := json.Marshal(item.ParticipantData)
	if err != nil {
		return Conversation{}, fmt.Errorf("encode participant data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin conversation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_low, participant_high, participant_data)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (participant_low, participant_high) DO NOTHING
	`, item.ID, pair[0], pair[1], string(data))
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		for _, userID := range pair {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_members (conversation_id, user_id, unread_count, deleted)
				VALUES ($1, $2, 0, FALSE)
				ON CONFLICT (conversation_id, user_id) DO NOTHING
			`, item.ID, userID); err != nil {
				return Conversation{}, fmt.Errorf("insert conversation member: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("commit conversation: %w", err)
	}
	return s.FindConversation(ctx, pair[0], pair[1])
}

func (s *PostgresStore) SetConversationDeleted(ctx context.Context, conversationID, userID string, deleted bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_members SET deleted=$3 WHERE conversation_id=$1 AND user_id=$2
	`, conversationID, userID, deleted)
	if err != nil {
		return false, fmt.Errorf("set conversation deleted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set conversation deleted rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListUserConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_members me ON me.conversation_id = c.id AND me.user_id = $1
		WHERE me.deleted = FALSE
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]Conversation, 0)
	for rows.Next() {
		item, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UnreadTotal(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(unread_count), 0) FROM conversation_members WHERE user_id=$1 AND deleted=FALSE
	`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("unread total: %w", err)
	}
	return total, nil
}

// AppendMessage writes the message and the parent conversation's metadata in
// one transaction: last message fields, sender display data and a +1 on the
// recipient's unread counter.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message, senderData ParticipantData) error {
	data, err := json.Marshal(map[string]ParticipantData{msg.SenderID: senderData})
	if err != nil {
		return fmt.Errorf("encode sender data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, recipient_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.RecipientID, msg.Text, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message=$2, last_message_at=$3, last_sender_id=$4, participant_data = participant_data || $5::jsonb
		WHERE id=$1
	`, msg.ConversationID, msg.Text, msg.CreatedAt, msg.SenderID, string(data))
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_members SET unread_count = unread_count + 1, deleted = FALSE
		WHERE conversation_id=$1 AND user_id=$2
	`, msg.ConversationID, msg.RecipientID); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_members SET deleted = FALSE WHERE conversation_id=$1 AND user_id=$2
	`, msg.ConversationID, msg.SenderID); err != nil {
		return fmt.Errorf("restore sender membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID, viewerID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, recipient_id, text, read_at,
			COALESCE(array_to_json(deleted_for)::text, '[]'), created_at
		FROM messages
		WHERE conversation_id=$1 AND NOT ($2 = ANY(deleted_for))
		ORDER BY created_at ASC, id ASC
	`, conversationID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var (
			item       Message
			deletedFor string
		)
		if err := rows.Scan(&item.ID, &item.ConversationID, &item.SenderID, &item.RecipientID, &item.Text, &item.ReadAt, &deletedFor, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		item.DeletedFor = decodeTextArray(deletedFor)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// MarkMessagesRead stamps every unread message addressed to userID and
// resets the user's unread counter in the same transaction.
func (s *PostgresStore) MarkMessagesRead(ctx context.Context, conversationID, userID string, readAt time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE messages SET read_at=$3
		WHERE conversation_id=$1 AND recipient_id=$2 AND read_at IS NULL
	`, conversationID, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	marked, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversation_members SET unread_count = 0 WHERE conversation_id=$1 AND user_id=$2
	`, conversationID, userID); err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit read: %w", err)
	}
	return int(marked), nil
}

func (s *PostgresStore) HideMessage(ctx context.Context, conversationID, messageID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET deleted_for = CASE WHEN $3 = ANY(deleted_for) THEN deleted_for ELSE array_append(deleted_for, $3::text) END
		WHERE conversation_id=$1 AND id=$2
	`, conversationID, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("hide message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("hide message rows: %w", err)
	}
	return affected > 0, nil
}
