package web

// WebSocket event types
const (
	EventArchiveProgress = "archive.progress" // archive run status snapshot
	EventArchiveMessage  = "archive.message"  // message saved, relayed from NATS
	EventArchiveBatch    = "archive.batch"    // batch file written, relayed from NATS
	EventQRCode          = "tg_qr"
	EventAuthSuccess     = "tg_auth_success"
	EventError           = "error"
)

// WSEvent represents a structured WebSocket message
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// QRCodePayload is the payload for EventQRCode
type QRCodePayload struct {
	URL string `json:"url"`
}

// ErrorPayload is the payload for EventError
type ErrorPayload struct {
	Message string `json:"message"`
}
