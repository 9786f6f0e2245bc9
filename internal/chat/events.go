package chat

import (
	"chatsync/internal/bus"
	"chatsync/internal/model"
	"go.uber.org/zap"
)

// Inbound event contract for the real-time transport. Each handler
// routes through the same window/list update paths a sync-fetched
// message takes, so live push and polled sync produce identical state.

// OnMessageArrived ingests a pushed message.
func (f *Facade) OnMessageArrived(m model.Message) {
	m = f.ingest(m)
	w := f.windows.GetOrCreate(m.ChatID)
	if !w.InsertNewest(m) {
		// Replay of a message a delta fetch already delivered.
		return
	}
	f.list.TouchOnNewMessage(m.ChatID, m)

	go func() {
		if err := f.db.UpsertMessage(&m); err != nil {
			f.logger.Error("failed to persist pushed message", zap.Error(err), zap.Int64("msg_id", m.ID))
		}
		if err := f.db.UpdateChatLastMessage(m.ChatID, &m); err != nil {
			f.logger.Error("failed to update chat last message", zap.Error(err), zap.Int64("chat_id", m.ChatID))
		}
	}()
	f.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Payload: m})
}

// OnMessageEdited ingests a pushed edit.
func (f *Facade) OnMessageEdited(m model.Message) {
	m = f.ingest(m)
	m.IsEdited = true
	if w := f.windows.Get(m.ChatID); w != nil {
		w.Update(m)
	}
	go func() {
		if err := f.db.UpsertMessage(&m); err != nil {
			f.logger.Error("failed to persist pushed edit", zap.Error(err), zap.Int64("msg_id", m.ID))
		}
	}()
	f.bus.Publish(bus.Event{Kind: bus.KindMessageUpserted, Payload: m})
}

// OnMessageDeleted ingests a pushed delete.
func (f *Facade) OnMessageDeleted(chatID, messageID int64) {
	if w := f.windows.Get(chatID); w != nil {
		w.Remove(messageID)
		f.list.UpdateLastMessage(chatID, newestOrNil(w))
	}
	go func() {
		if err := f.db.MarkDeleted(messageID); err != nil {
			f.logger.Error("failed to tombstone pushed delete", zap.Error(err), zap.Int64("msg_id", messageID))
		}
	}()
	f.bus.Publish(bus.Event{Kind: bus.KindMessageDeleted, Payload: messageID})
}
