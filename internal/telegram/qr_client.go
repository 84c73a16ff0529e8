package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"

	"github.com/blockedby/tg-archive/internal/config"
)

// QRLogin is a throwaway MTProto connection used only to accept a QR login.
// Its session lives in memory until Run hands it back.
type QRLogin struct {
	client     *telegram.Client
	dispatcher tg.UpdateDispatcher
	storage    *session.StorageMemory
}

// NewQRLogin prepares a QR login connection with fresh in-memory storage.
func NewQRLogin(cfg *config.Config) (*QRLogin, error) {
	l := &QRLogin{
		dispatcher: tg.NewUpdateDispatcher(),
		storage:    &session.StorageMemory{},
	}
	l.client = telegram.NewClient(cfg.TGApiID, cfg.TGApiHash, telegram.Options{
		SessionStorage: l.storage,
		UpdateHandler:  &l.dispatcher,
	})
	return l, nil
}

// Run shows login tokens through onToken until one is accepted on a phone,
// then returns the authorized session. Tokens expire, so onToken is called
// again with every refreshed URL.
func (l *QRLogin) Run(ctx context.Context, onToken func(url string)) (*session.Data, error) {
	var data *session.Data

	err := l.client.Run(ctx, func(ctx context.Context) error {
		accepted := qrlogin.OnLoginToken(&l.dispatcher)

		_, err := l.client.QR().Auth(ctx, accepted, func(_ context.Context, token qrlogin.Token) error {
			onToken(token.URL())
			return nil
		})
		if err != nil {
			return err
		}

		data, err = (&session.Loader{Storage: l.storage}).Load(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("qr login: %w", err)
	}
	if data == nil {
		return nil, errors.New("qr login: no session after authorization")
	}
	return data, nil
}
