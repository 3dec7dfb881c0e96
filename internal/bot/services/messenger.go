package services

import (
	"context"

	"github.com/mymmrac/telego"
)

// Messenger is the part of *telego.Bot the services send through
type Messenger interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
}
