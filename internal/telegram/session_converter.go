package telegram

import (
	"encoding/json"
	"fmt"

	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/session"
)

// sessionFileVersion matches the envelope gotd's session.Loader writes.
const sessionFileVersion = 1

// ConvertToGotgprotoSession wraps gotd session data the way gotgproto's sql
// session storage expects to find it: {"Version":1,"Data":{...}}.
func ConvertToGotgprotoSession(data *session.Data) (*storage.Session, error) {
	if data == nil {
		return nil, fmt.Errorf("session data is nil")
	}

	raw, err := json.Marshal(struct {
		Version int
		Data    session.Data
	}{
		Version: sessionFileVersion,
		Data:    *data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	return &storage.Session{
		Version: storage.LatestVersion,
		Data:    raw,
	}, nil
}
