package store

import (
	"database/sql"
	"time"

	"chatsync/internal/model"
)

const messageColumns = `id, chat_id, sender_id, content, message_type, media_url, media_mime, media_duration_ms,
	reply_to_message_id, status, is_edited, is_read, from_me, sent_at, deleted_at`

const upsertMessageSQL = `
	INSERT INTO messages (id, chat_id, sender_id, content, message_type, media_url, media_mime, media_duration_ms,
		reply_to_message_id, status, is_edited, is_read, from_me, sent_at, deleted_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		content = excluded.content,
		message_type = excluded.message_type,
		media_url = excluded.media_url,
		media_mime = excluded.media_mime,
		media_duration_ms = excluded.media_duration_ms,
		status = excluded.status,
		is_edited = excluded.is_edited,
		is_read = excluded.is_read,
		deleted_at = excluded.deleted_at`

func messageArgs(m *model.Message, now int64) []any {
	return []any{
		m.ID, m.ChatID, m.SenderID, m.Content, m.Type, m.MediaURL, m.MediaMime, m.MediaDurationMs,
		m.ReplyToID, m.Status, m.IsEdited, m.IsRead, m.FromMe, m.SentAt, m.DeletedAt, now,
	}
}

// UpsertMessage inserts or updates a single message (idempotent on id).
func (db *DB) UpsertMessage(m *model.Message) error {
	_, err := db.Exec(upsertMessageSQL, messageArgs(m, time.Now().UnixMilli())...)
	return err
}

// UpsertMessages writes a batch of messages for a chat in one transaction.
func (db *DB) UpsertMessages(chatID int64, msgs []model.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for i := range msgs {
		m := msgs[i]
		m.ChatID = chatID
		if _, err := tx.Exec(upsertMessageSQL, messageArgs(&m, now)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) queryMessages(query string, args ...any) ([]model.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.Type, &m.MediaURL, &m.MediaMime,
			&m.MediaDurationMs, &m.ReplyToID, &m.Status, &m.IsEdited, &m.IsRead, &m.FromMe, &m.SentAt, &m.DeletedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetInitialMessages returns the newest messages of a chat, newest first.
func (db *DB) GetInitialMessages(chatID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND deleted_at = 0
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, chatID, limit)
}

// GetMessagesBefore returns messages older than the given message,
// newest first (keyset pagination on sent_at).
func (db *DB) GetMessagesBefore(chatID, beforeMessageID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryMessages(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND deleted_at = 0
			AND sent_at < (SELECT sent_at FROM messages WHERE id = ?)
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, chatID, beforeMessageID, limit)
}

// GetMessage returns a message by id, nil if absent.
func (db *DB) GetMessage(id int64) (*model.Message, error) {
	msgs, err := db.queryMessages(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// MarkDeleted tombstones a message.
func (db *DB) MarkDeleted(messageID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE messages SET deleted_at = ? WHERE id = ?`, now, messageID)
	return err
}

// MarkMessagesRead flags the given messages read; an empty slice means
// every message in the chat.
func (db *DB) MarkMessagesRead(chatID int64, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		_, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE chat_id = ?`, chatID)
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range messageIDs {
		if _, err := tx.Exec(`UPDATE messages SET is_read = 1 WHERE chat_id = ? AND id = ?`, chatID, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LastSync returns the per-chat delta sync checkpoint (0 if never synced).
func (db *DB) LastSync(chatID int64) (int64, error) {
	var ts int64
	err := db.QueryRow(`SELECT last_sync_at FROM sync_state WHERE chat_id = ?`, chatID).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ts, nil
}

// SetLastSync advances the per-chat delta sync checkpoint.
func (db *DB) SetLastSync(chatID, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (chat_id, last_sync_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET last_sync_at = excluded.last_sync_at, updated_at = excluded.updated_at`,
		chatID, ts, now)
	return err
}
