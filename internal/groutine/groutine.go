package groutine

import (
	"context"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// PanicLogger receives panics recovered from named goroutines. Nil disables recovery.
var PanicLogger logrus.FieldLogger

// Go starts fn on a new goroutine labelled name, so profiles and panic reports
// show which transport call it belongs to.
//
//	groutine.Go(ctx, "session-connect", func(ctx context.Context) {
//	    link, err = transport.Connect(ctx, addr)
//	})
//
// A nil parent means context.Background().
func Go(parent context.Context, name string, fn func(ctx context.Context)) {
	if parent == nil {
		parent = context.Background()
	}
	go pprof.Do(parent, pprof.Labels("goroutine_name", name), func(ctx context.Context) {
		if PanicLogger != nil {
			defer recoverTo(PanicLogger, name)
		}
		fn(context.WithValue(ctx, nameKey, name))
	})
}

func recoverTo(logger logrus.FieldLogger, name string) {
	if r := recover(); r != nil {
		logger.WithFields(logrus.Fields{
			"goroutine": name,
			"panic":     r,
			"stack":     string(debug.Stack()),
		}).Error("Recovered panic in goroutine")
	}
}

// Name returns the name Go attached to ctx, or "".
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(nameKey).(string)
	return s
}
