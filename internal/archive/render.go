package archive

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blockedby/tg-archive/internal/telegram"
)

// DateLayout is the timestamp format used inside message sections.
const DateLayout = "2006-01-02 15:04:05"

const maxNameRunes = 100

var nameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeName makes a channel title safe for use as a file or directory name.
func SanitizeName(s string) string {
	s = nameReplacer.Replace(s)
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes])
	}
	if s == "" {
		return "unnamed"
	}
	return s
}

// RenderMessage formats one message as a markdown section. mediaPath is the
// relative reference of the downloaded attachment, or empty when nothing was
// stored. User text is written as is.
func RenderMessage(msg telegram.Message, channel, mediaPath string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Message %d\n\n", msg.ID)
	fmt.Fprintf(&b, "**Channel:** %s\n", channel)
	fmt.Fprintf(&b, "**Sender:** %s\n", senderOrUnknown(msg.Sender))
	fmt.Fprintf(&b, "**Date:** %s\n", msg.Date.UTC().Format(DateLayout))
	fmt.Fprintf(&b, "**Message ID:** %d\n\n", msg.ID)

	if text := strings.TrimSpace(msg.Text); text != "" {
		fmt.Fprintf(&b, "### Content\n\n%s\n\n", text)
	}

	if msg.Media != nil {
		writeMedia(&b, msg.Media, mediaPath)
	}

	if msg.IsForward {
		b.WriteString("**Forwarded Message**\n\n")
	}
	if msg.ReplyToID != 0 {
		fmt.Fprintf(&b, "**Reply to:** Message %d\n\n", msg.ReplyToID)
	}

	b.WriteString("---\n\n")
	return b.String()
}

func writeMedia(b *strings.Builder, m *telegram.Media, path string) {
	switch m.Kind {
	case telegram.MediaPhoto:
		if path != "" {
			fmt.Fprintf(b, "**Media:** 📷 Photo\n\n![Photo](%s)\n\n", path)
			return
		}
		b.WriteString("**Media:** 📷 Photo\n\n")

	case telegram.MediaDocument:
		name := m.FileName
		if name == "" {
			name = "Unknown"
		}
		switch {
		case path == "":
			fmt.Fprintf(b, "**Media:** 📎 Document (%s)\n\n", name)
		case strings.HasPrefix(m.MimeType, "image/"):
			fmt.Fprintf(b, "**Media:** 📷 Image Document (%s)\n\n![%s](%s)\n\n", name, name, path)
		case strings.HasPrefix(m.MimeType, "video/"):
			fmt.Fprintf(b, "**Media:** 🎬 Video (%s)\n\n[Download %s](%s)\n\n", name, name, path)
		default:
			fmt.Fprintf(b, "**Media:** 📎 Document (%s)\n\n[Download %s](%s)\n\n", name, name, path)
		}

	default:
		fmt.Fprintf(b, "**Media:** %s\n\n", m.TypeName)
	}
}

func senderOrUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
