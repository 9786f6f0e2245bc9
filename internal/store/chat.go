package store

import (
	"database/sql"
	"time"

	"chatsync/internal/model"
)

// UpsertChat inserts or updates a chat record (idempotent on id).
func (db *DB) UpsertChat(c *model.Chat) error {
	return upsertChat(db.DB, c)
}

// UpsertChats writes a full chat page in one transaction.
func (db *DB) UpsertChats(chats []model.Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i := range chats {
		if err := upsertChat(tx, &chats[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertChat(e execer, c *model.Chat) error {
	now := time.Now().UnixMilli()
	var lastMsgID int64
	var preview string
	if c.LastMessage != nil {
		lastMsgID = c.LastMessage.ID
		preview = c.LastMessage.Preview()
	}
	_, err := e.Exec(`
		INSERT INTO chats (id, other_user_id, other_user_name, other_user_avatar_url, muted, last_read_at, role,
			unread_count, last_activity_at, last_message_id, last_message_preview, deleted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			other_user_id = excluded.other_user_id,
			other_user_name = excluded.other_user_name,
			other_user_avatar_url = excluded.other_user_avatar_url,
			muted = excluded.muted,
			last_read_at = excluded.last_read_at,
			role = excluded.role,
			unread_count = excluded.unread_count,
			last_activity_at = excluded.last_activity_at,
			last_message_id = excluded.last_message_id,
			last_message_preview = excluded.last_message_preview,
			deleted_at = excluded.deleted_at,
			updated_at = excluded.updated_at`,
		c.ID, c.OtherUser.ID, c.OtherUser.Name, c.OtherUser.AvatarURL, c.Pivot.Muted, c.Pivot.LastReadAt, c.Pivot.Role,
		c.UnreadCount, c.LastActivityAt, lastMsgID, preview, c.DeletedAt, now)
	return err
}

const chatColumns = `id, other_user_id, other_user_name, other_user_avatar_url, muted, last_read_at, role,
	unread_count, last_activity_at, last_message_preview, deleted_at`

func scanChat(scan func(...any) error) (*model.Chat, error) {
	var c model.Chat
	var preview string
	err := scan(&c.ID, &c.OtherUser.ID, &c.OtherUser.Name, &c.OtherUser.AvatarURL,
		&c.Pivot.Muted, &c.Pivot.LastReadAt, &c.Pivot.Role,
		&c.UnreadCount, &c.LastActivityAt, &preview, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	if preview != "" {
		c.LastMessage = &model.Message{ChatID: c.ID, Content: preview, Type: model.TypeText}
	}
	return &c, nil
}

// ListChats returns non-deleted chats sorted by last activity
// descending, higher id first on ties so ordering stays deterministic.
func (db *DB) ListChats(limit, offset int) ([]model.Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chats
		WHERE deleted_at = 0
		ORDER BY last_activity_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		c, err := scanChat(rows.Scan)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, nil if absent or tombstoned.
func (db *DB) GetChat(id int64) (*model.Chat, error) {
	row := db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ? AND deleted_at = 0`, id)
	c, err := scanChat(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateChatLastMessage bumps a chat's last message and activity time.
func (db *DB) UpdateChatLastMessage(chatID int64, m *model.Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE chats SET last_message_id = ?, last_message_preview = ?, last_activity_at = ?, updated_at = ?
		WHERE id = ?`,
		m.ID, m.Preview(), m.SentAt, now, chatID)
	return err
}

// ResetUnread clears a chat's unread count and stamps last_read_at.
func (db *DB) ResetUnread(chatID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET unread_count = 0, last_read_at = ?, updated_at = ? WHERE id = ?`, now, now, chatID)
	return err
}

// MarkChatDeleted tombstones a chat. Rows are never hard-removed while
// messages still reference them.
func (db *DB) MarkChatDeleted(chatID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chats SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, chatID)
	return err
}
