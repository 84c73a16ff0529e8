// Package telegram provides Telegram MTProto client wrapper.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-archive/internal/logger"
)

// maxPageSize is the telegram limit for one messages.getHistory call
const maxPageSize = 100

// ErrNotDownloadable is returned when media has no file behind it.
var ErrNotDownloadable = errors.New("media is not downloadable")

// MessageHandler receives live messages from Subscribe.
type MessageHandler func(ctx context.Context, msg Message)

// Client wraps gotgproto client and provides high-level telegram operations.
// It uses the Manager to access the underlying protocol client.
type Client struct {
	manager     *Manager
	rateLimiter *RateLimiter
	downloader  *downloader.Downloader
	log         *logger.Logger
}

// NewClient creates a new telegram client wrapper using the Manager.
func NewClient(manager *Manager) *Client {
	return &Client{
		manager:     manager,
		rateLimiter: DefaultRateLimiter(),
		downloader:  downloader.NewDownloader(),
		log:         logger.Get().Component("telegram"),
	}
}

// Close stops the client via the manager.
func (c *Client) Close() {
	if c.manager != nil {
		c.manager.Stop()
	}
}

// GetStatus returns the current status of the telegram client.
func (c *Client) GetStatus() Status {
	return c.manager.GetStatus()
}

// StartQR starts the QR login flow by proxying to the manager.
func (c *Client) StartQR(ctx context.Context, onQRCode func(url string)) error {
	return c.manager.StartQR(ctx, onQRCode)
}

// IsQRInProgress returns true if a QR login flow is currently in progress.
func (c *Client) IsQRInProgress() bool {
	return c.manager.IsQRInProgress()
}

// CancelQR cancels any ongoing QR login flow.
func (c *Client) CancelQR() {
	c.manager.CancelQR()
}

// getProto returns the current protocol client if available.
func (c *Client) getProto() (*gotgproto.Client, error) {
	proto := c.manager.GetClient()
	if proto == nil {
		return nil, fmt.Errorf("telegram client not authorized")
	}
	return proto, nil
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() (*tg.Client, error) {
	proto, err := c.getProto()
	if err != nil {
		return nil, err
	}
	return proto.API(), nil
}

// ResolveChannel resolves a channel reference (@name, name or t.me link)
// to Channel info.
func (c *Client) ResolveChannel(ctx context.Context, identifier string) (*Channel, error) {
	username, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	api, err := c.API()
	if err != nil {
		return nil, err
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.log.Info().Str("username", username).Msg("resolving channel username")
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.handleFloodWait(err)
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	for _, chat := range resolved.Chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			return &Channel{
				ID:         ch.ID,
				AccessHash: ch.AccessHash,
				Username:   ch.Username,
				Title:      ch.Title,
				Type:       "channel",
			}, nil
		case *tg.Chat:
			return &Channel{
				ID:    ch.ID,
				Title: ch.Title,
				Type:  "chat",
			}, nil
		}
	}

	return nil, fmt.Errorf("not a channel or chat: %s", username)
}

// GetHistory fetches up to req.Limit messages dated within [Since, Until],
// newest first. Pages of at most 100 messages are requested until the
// limit is reached, history runs out or a message older than Since appears.
func (c *Client) GetHistory(ctx context.Context, ch *Channel, req HistoryRequest) ([]Message, error) {
	api, err := c.API()
	if err != nil {
		return nil, err
	}

	fetch := func(ctx context.Context, offsetID, offsetDate, limit int) (historyPage, error) {
		if err := c.wait(ctx); err != nil {
			return historyPage{}, err
		}

		c.log.Debug().
			Int64("channel_id", ch.ID).
			Int("offset_id", offsetID).
			Int("limit", limit).
			Msg("calling MessagesGetHistory")

		history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:       inputPeer(ch),
			OffsetID:   offsetID,
			OffsetDate: offsetDate,
			Limit:      limit,
		})
		if err != nil {
			c.handleFloodWait(err)
			return historyPage{}, fmt.Errorf("get history: %w", err)
		}
		return extractMessages(history, ch), nil
	}

	return collectHistory(ctx, req, fetch)
}

// historyPage is one messages.getHistory response. Size and OldestID count
// every returned message, including service messages dropped from Messages.
type historyPage struct {
	Messages []Message // newest first
	Size     int
	OldestID int
}

// pageFunc fetches one page of history older than offsetID (or offsetDate).
type pageFunc func(ctx context.Context, offsetID, offsetDate, limit int) (historyPage, error)

// collectHistory walks history pages backwards and applies the request window.
func collectHistory(ctx context.Context, req HistoryRequest, fetch pageFunc) ([]Message, error) {
	var (
		out        []Message
		offsetID   int
		offsetDate int
	)
	if !req.Until.IsZero() {
		offsetDate = int(req.Until.Unix())
	}

	for {
		size := maxPageSize
		if req.Limit > 0 {
			size = min(size, req.Limit-len(out))
		}

		page, err := fetch(ctx, offsetID, offsetDate, size)
		if err != nil {
			return nil, err
		}
		if page.Size == 0 {
			return out, nil
		}

		for _, m := range page.Messages {
			if !req.Since.IsZero() && m.Date.Before(req.Since) {
				return out, nil
			}
			if !req.Until.IsZero() && m.Date.After(req.Until) {
				continue
			}
			out = append(out, m)
			if req.Limit > 0 && len(out) >= req.Limit {
				return out, nil
			}
		}

		// offset by the oldest raw id so the next page continues below it
		offsetID = page.OldestID
		offsetDate = 0
		if page.Size < size {
			return out, nil
		}
	}
}

// DownloadMedia stores the attachment at path.
func (c *Client) DownloadMedia(ctx context.Context, media *Media, path string) error {
	if !media.Downloadable() {
		return ErrNotDownloadable
	}

	api, err := c.API()
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	if _, err := c.downloader.Download(api, media.location).ToPath(ctx, path); err != nil {
		c.handleFloodWait(err)
		return fmt.Errorf("download media: %w", err)
	}
	return nil
}

// Subscribe registers handler for every new message the account receives.
// Filtering by channel is up to the caller.
func (c *Client) Subscribe(handler MessageHandler) error {
	proto, err := c.getProto()
	if err != nil {
		return err
	}

	proto.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, func(ctx *ext.Context, u *ext.Update) error {
		if u.EffectiveMessage == nil || u.EffectiveMessage.Message == nil {
			return nil
		}
		m := u.EffectiveMessage.Message

		var chID int64
		if peer, ok := m.PeerID.(*tg.PeerChannel); ok {
			chID = peer.ChannelID
		} else if peer, ok := m.PeerID.(*tg.PeerChat); ok {
			chID = peer.ChatID
		} else {
			return nil
		}

		var users map[int64]*tg.User
		title := ""
		if u.Entities != nil {
			users = u.Entities.Users
			if ch, ok := u.Entities.Channels[chID]; ok {
				title = ch.Title
			} else if chat, ok := u.Entities.Chats[chID]; ok {
				title = chat.Title
			}
		}

		handler(ctx.Context, convertMessage(m, chID, title, users))
		return nil
	}))

	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.log.Error().Err(err).Msg("rate limiter wait failed")
		return err
	}
	return nil
}

func (c *Client) handleFloodWait(err error) {
	if wait := checkFloodWait(err); wait > 0 {
		c.log.Warn().Int("wait_seconds", wait).Msg("FLOOD_WAIT detected, updating rate limiter")
		c.rateLimiter.SetFloodWait(wait)
	}
}

func inputPeer(ch *Channel) tg.InputPeerClass {
	if ch.Type == "chat" {
		return &tg.InputPeerChat{ChatID: ch.ID}
	}
	return &tg.InputPeerChannel{
		ChannelID:  ch.ID,
		AccessHash: ch.AccessHash,
	}
}

// extractMessages converts a history response to Message values, newest first.
// Service messages are skipped but still counted in the page size.
func extractMessages(messagesClass tg.MessagesMessagesClass, ch *Channel) historyPage {
	var (
		raw   []tg.MessageClass
		users []tg.UserClass
	)

	switch h := messagesClass.(type) {
	case *tg.MessagesChannelMessages:
		raw, users = h.Messages, h.Users
	case *tg.MessagesMessagesSlice:
		raw, users = h.Messages, h.Users
	case *tg.MessagesMessages:
		raw, users = h.Messages, h.Users
	}

	byID := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			byID[user.ID] = user
		}
	}

	page := historyPage{
		Messages: make([]Message, 0, len(raw)),
		Size:     len(raw),
	}
	for _, msg := range raw {
		if id := msg.GetID(); page.OldestID == 0 || id < page.OldestID {
			page.OldestID = id
		}
		m, ok := msg.(*tg.Message)
		if !ok {
			continue
		}
		page.Messages = append(page.Messages, convertMessage(m, ch.ID, ch.Title, byID))
	}

	sort.SliceStable(page.Messages, func(i, j int) bool {
		return page.Messages[i].ID > page.Messages[j].ID
	})
	return page
}

// convertMessage converts a single telegram message to our Message type.
func convertMessage(m *tg.Message, channelID int64, channelTitle string, users map[int64]*tg.User) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: channelID,
		Date:      time.Unix(int64(m.Date), 0).UTC(),
		Sender:    senderName(m.FromID, channelTitle, users),
		Text:      m.Message,
		Media:     convertMedia(m.Media),
	}

	if _, ok := m.GetFwdFrom(); ok {
		msg.IsForward = true
	}
	if reply, ok := m.ReplyTo.(*tg.MessageReplyHeader); ok {
		msg.ReplyToID = reply.ReplyToMsgID
	}
	return msg
}

// senderName returns "First Last" for users, the channel title for posts.
func senderName(from tg.PeerClass, channelTitle string, users map[int64]*tg.User) string {
	if peer, ok := from.(*tg.PeerUser); ok {
		u, ok := users[peer.UserID]
		if !ok {
			return "Unknown"
		}
		name := u.FirstName
		if name == "" {
			name = "Unknown"
		}
		if u.LastName != "" {
			name += " " + u.LastName
		}
		return name
	}

	if channelTitle == "" {
		return "Unknown"
	}
	return channelTitle
}

// convertMedia maps telegram media to Media, nil when there is none.
func convertMedia(media tg.MessageMediaClass) *Media {
	if media == nil {
		return nil
	}
	if _, ok := media.(*tg.MessageMediaEmpty); ok {
		return nil
	}

	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		out := &Media{Kind: MediaPhoto, TypeName: v.TypeName(), MimeType: "image/jpeg"}
		if photo, ok := v.Photo.(*tg.Photo); ok {
			thumb, size := largestPhotoSize(photo.Sizes)
			out.Size = int64(size)
			if thumb != "" {
				out.location = &tg.InputPhotoFileLocation{
					ID:            photo.ID,
					AccessHash:    photo.AccessHash,
					FileReference: photo.FileReference,
					ThumbSize:     thumb,
				}
			}
		}
		return out

	case *tg.MessageMediaDocument:
		out := &Media{Kind: MediaDocument, TypeName: v.TypeName()}
		if doc, ok := v.Document.(*tg.Document); ok {
			out.MimeType = doc.MimeType
			out.Size = doc.Size
			for _, attr := range doc.Attributes {
				if fn, ok := attr.(*tg.DocumentAttributeFilename); ok && fn.FileName != "" {
					out.FileName = fn.FileName
					break
				}
			}
			out.location = &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			}
		}
		return out

	default:
		return &Media{Kind: MediaOther, TypeName: media.TypeName()}
	}
}

// largestPhotoSize picks the biggest downloadable size of a photo.
func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, int) {
	var (
		bestType string
		bestSize = -1
	)
	for _, s := range sizes {
		var n int
		switch v := s.(type) {
		case *tg.PhotoSize:
			n = v.Size
		case *tg.PhotoSizeProgressive:
			if len(v.Sizes) > 0 {
				n = v.Sizes[len(v.Sizes)-1]
			}
		default:
			continue
		}
		if n > bestSize {
			bestType, bestSize = s.GetType(), n
		}
	}
	if bestSize < 0 {
		return "", 0
	}
	return bestType, bestSize
}

// checkFloodWait checks if error is a FLOOD_WAIT error and returns wait seconds
func checkFloodWait(err error) int {
	if err == nil {
		return 0
	}

	// errors come wrapped as e.g. "rpc error code 420: FLOOD_WAIT_15"
	str := err.Error()
	_, after, ok := strings.Cut(str, "FLOOD_WAIT_")
	if !ok {
		return 0
	}
	var seconds int
	_, _ = fmt.Sscanf(strings.TrimSpace(after), "%d", &seconds)
	return seconds
}
