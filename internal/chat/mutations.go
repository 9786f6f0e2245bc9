package chat

import (
	"context"
	"fmt"

	"chatsync/internal/bus"
	"chatsync/internal/model"
	"chatsync/internal/remote"
	"go.uber.org/zap"
)

// SendMessage applies the optimistic send protocol: the message appears
// in the window immediately with a temporary id and `sending` status;
// server confirmation swaps it in place for the real message; failure
// rolls the window back completely and surfaces the error.
func (f *Facade) SendMessage(ctx context.Context, chatID int64, draft remote.Draft) (*model.Message, error) {
	if draft.Type == "" {
		draft.Type = model.TypeText
	}
	w := f.windows.GetOrCreate(chatID)

	temp := model.Message{
		ID:        f.temps.Next(),
		ChatID:    chatID,
		SenderID:  f.userID,
		Content:   draft.Content,
		Type:      draft.Type,
		MediaURL:  draft.MediaURL,
		ReplyToID: draft.ReplyToID,
		Status:    model.StatusSending,
		FromMe:    true,
		SentAt:    f.nowMilli(),
	}
	w.InsertNewest(temp)
	f.list.TouchOnNewMessage(chatID, temp)
	f.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Payload: temp})

	msg, err := f.remote.SendMessage(ctx, chatID, draft)
	f.reportRemote(err)
	if err != nil {
		// Full rollback: no half-sent message stays visible.
		w.Remove(temp.ID)
		f.list.UpdateLastMessage(chatID, newestOrNil(w))
		f.bus.Publish(bus.Event{Kind: bus.KindMessageSendFailed, Payload: temp})
		return nil, fmt.Errorf("send message: %w", err)
	}

	real := f.ingest(*msg)
	if real.Status == "" {
		real.Status = model.StatusSent
	}
	w.Replace(temp.ID, real)
	f.list.UpdateLastMessage(chatID, &real)

	go func() {
		if err := f.db.UpsertMessage(&real); err != nil {
			f.logger.Error("failed to persist sent message", zap.Error(err), zap.Int64("msg_id", real.ID))
		}
		if err := f.db.UpdateChatLastMessage(chatID, &real); err != nil {
			f.logger.Error("failed to update chat last message", zap.Error(err), zap.Int64("chat_id", chatID))
		}
	}()
	f.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Payload: real})
	return &real, nil
}

// EditMessage applies the edit locally and synchronously, queues it for
// reconciliation, then confirms with the server. On failure the local
// edit is retained and retried on the next sync cycle, never rolled
// back: undoing a user's explicit intent on a transient error is worse
// than a short inconsistency window.
func (f *Facade) EditMessage(ctx context.Context, chatID, messageID int64, content string) (*model.Message, error) {
	w := f.windows.GetOrCreate(chatID)

	edited, ok := w.Get(messageID)
	if !ok {
		if stored, err := f.db.GetMessage(messageID); err == nil && stored != nil {
			edited = *stored
		} else {
			edited = model.Message{ID: messageID, ChatID: chatID, SenderID: f.userID, FromMe: true, Type: model.TypeText}
		}
	}
	edited.Content = content
	edited.IsEdited = true
	w.Update(edited)
	f.syncer.QueueEdit(chatID, edited)
	f.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Payload: edited})

	msg, err := f.remote.EditMessage(ctx, chatID, messageID, content)
	f.reportRemote(err)
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}

	// The pending entry is cleared by the next sync cycle, not here, so
	// an in-flight delta fetch cannot re-introduce the pre-edit body.
	real := f.ingest(*msg)
	go func() {
		if err := f.db.UpsertMessage(&real); err != nil {
			f.logger.Error("failed to persist edit", zap.Error(err), zap.Int64("msg_id", real.ID))
		}
	}()
	return &real, nil
}

// DeleteMessage removes the message locally and synchronously, queues a
// pending delete, then confirms with the server. Same retention policy
// as EditMessage on failure.
func (f *Facade) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	w := f.windows.GetOrCreate(chatID)
	w.Remove(messageID)
	f.syncer.QueueDelete(chatID, messageID)
	f.list.UpdateLastMessage(chatID, newestOrNil(w))
	f.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, Payload: messageID})

	err := f.remote.DeleteMessage(ctx, chatID, messageID)
	f.reportRemote(err)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	go func() {
		if err := f.db.MarkDeleted(messageID); err != nil {
			f.logger.Error("failed to tombstone message", zap.Error(err), zap.Int64("msg_id", messageID))
		}
	}()
	return nil
}

// MarkRead clears unread state locally and notifies the server. An
// empty id list marks the whole chat. Remote failures are logged, not
// surfaced: read receipts are best-effort.
func (f *Facade) MarkRead(ctx context.Context, chatID int64, messageIDs []int64) error {
	w := f.windows.GetOrCreate(chatID)
	if len(messageIDs) == 0 {
		w.MarkAllRead()
	} else {
		for _, id := range messageIDs {
			if m, ok := w.Get(id); ok {
				m.IsRead = true
				w.Update(m)
			}
		}
	}
	f.list.ResetUnread(chatID)

	if err := f.db.MarkMessagesRead(chatID, messageIDs); err != nil {
		f.logger.Error("failed to persist read state", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	if err := f.db.ResetUnread(chatID); err != nil {
		f.logger.Error("failed to reset unread count", zap.Error(err), zap.Int64("chat_id", chatID))
	}

	err := f.remote.MarkMessagesRead(ctx, chatID, messageIDs)
	f.reportRemote(err)
	if err != nil {
		f.logger.Warn("failed to send read receipts", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	f.bus.Publish(bus.Event{Kind: bus.KindChatUpdated, Payload: chatID})
	return nil
}

func newestOrNil(w interface{ Messages() []model.Message }) *model.Message {
	msgs := w.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[0]
}
