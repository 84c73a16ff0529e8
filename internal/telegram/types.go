package telegram

import (
	"time"

	"github.com/gotd/td/tg"
)

// MediaKind classifies message attachments
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// Message represents a parsed telegram message
type Message struct {
	ID        int       // message id (unique within channel)
	ChannelID int64     // channel id
	Date      time.Time // message creation timestamp, UTC
	Sender    string    // display name of the author
	Text      string    // message text content, may be empty
	Media     *Media    // nil when the message has no attachment
	IsForward bool      // message was forwarded from elsewhere
	ReplyToID int       // id of the replied message, 0 if none
}

// HasMedia reports whether the message carries an attachment.
func (m Message) HasMedia() bool {
	return m.Media != nil
}

// Media describes a message attachment
type Media struct {
	Kind     MediaKind
	TypeName string // telegram constructor name, e.g. messageMediaGeo
	FileName string // declared filename attribute, may be empty
	MimeType string
	Size     int64

	location tg.InputFileLocationClass // nil when not downloadable
}

// Downloadable reports whether the attachment has a file behind it.
func (m *Media) Downloadable() bool {
	return m != nil && m.location != nil
}

// Channel represents a telegram channel info
type Channel struct {
	ID         int64  // channel id
	AccessHash int64  // access hash for api calls
	Username   string // channel username (without @)
	Title      string // channel title
	Type       string // "channel" or "chat"
}

// HistoryRequest bounds a history fetch
type HistoryRequest struct {
	Limit int       // max messages, 0 = no limit
	Since time.Time // oldest message date to include, zero = no bound
	Until time.Time // newest message date to include, zero = now
}
