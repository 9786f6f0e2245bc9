package model

// Message type discriminators as sent by the server.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVoice = "voice"
	TypeFile  = "file"
)

// MediaPayload is the typed view of a message's media fields, keyed by
// the message_type discriminator.
type MediaPayload interface {
	Kind() string
}

// TextPayload is a plain text message (no media).
type TextPayload struct {
	Content string
}

// ImagePayload is an image attachment.
type ImagePayload struct {
	URL string
}

// VoicePayload is a voice note with its duration.
type VoicePayload struct {
	URL        string
	DurationMs int
}

// FilePayload is a generic file attachment.
type FilePayload struct {
	URL  string
	Mime string
}

func (TextPayload) Kind() string  { return TypeText }
func (ImagePayload) Kind() string { return TypeImage }
func (VoicePayload) Kind() string { return TypeVoice }
func (FilePayload) Kind() string  { return TypeFile }

// Media returns the tagged payload for the message. Unknown types fall
// back to TextPayload so a newer server cannot break rendering.
func (m *Message) Media() MediaPayload {
	switch m.Type {
	case TypeImage:
		return ImagePayload{URL: m.MediaURL}
	case TypeVoice:
		return VoicePayload{URL: m.MediaURL, DurationMs: m.MediaDurationMs}
	case TypeFile:
		return FilePayload{URL: m.MediaURL, Mime: m.MediaMime}
	}
	return TextPayload{Content: m.Content}
}
