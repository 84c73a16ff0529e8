package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPrivateLink is returned for invite links, which cannot be resolved by username.
var ErrPrivateLink = errors.New("private invite links are not supported")

// ParseIdentifier extracts the public username from a channel reference.
// Accepted forms: @name, name, https://t.me/name, t.me/name.
func ParseIdentifier(s string) (string, error) {
	id := strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://"} {
		id = strings.TrimPrefix(id, prefix)
	}
	id = strings.TrimPrefix(id, "www.")

	if rest, ok := strings.CutPrefix(id, "t.me/"); ok {
		id = rest
		if strings.HasPrefix(id, "+") || strings.HasPrefix(id, "joinchat/") {
			return "", fmt.Errorf("%s: %w", s, ErrPrivateLink)
		}
		// drop trailing post ids and query strings: t.me/name/123?single
		if i := strings.IndexAny(id, "/?#"); i >= 0 {
			id = id[:i]
		}
	}

	id = strings.TrimPrefix(id, "@")
	if id == "" || strings.ContainsAny(id, " /+") {
		return "", fmt.Errorf("invalid channel identifier %q", s)
	}
	return id, nil
}
