package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"vpn-shop-bot/internal/logger"
)

// Recovery handles panics and recovers from them
type Recovery struct {
	logger *logger.Logger
}

// NewRecovery creates a new recovery middleware
func NewRecovery(log *logger.Logger) *Recovery {
	return &Recovery{logger: log}
}

// Recover recovers from a panic and logs it
func (r *Recovery) Recover() {
	if err := recover(); err != nil {
		r.logger.WithFields(map[string]interface{}{
			"panic": fmt.Sprint(err),
			"stack": string(debug.Stack()),
		}).Error("Panic recovered")
	}
}

// WrapFunc wraps a function with panic recovery
func (r *Recovery) WrapFunc(fn func()) {
	defer r.Recover()
	fn()
}

// Handler is a telegohandler middleware that keeps one bad update from stopping the bot
func (r *Recovery) Handler() th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		defer r.Recover()
		return ctx.Next(update)
	}
}

// HandleError handles errors and logs them
func HandleError(log *logger.Logger, err error, context string) {
	if err != nil {
		log.WithField("context", context).ErrorErr(err, "Error occurred")
	}
}
