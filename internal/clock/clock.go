package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

type Clock interface {
	Now(ctx context.Context) time.Time
}

var Module = fx.Module("clock",
	fx.Provide(New),
)

func New() Clock { return SystemClock{} }

type SystemClock struct{}

func (SystemClock) Now(context.Context) time.Time { return time.Now().UTC() }

// Fixed pins the clock for tests.
type Fixed struct{ T time.Time }

func (f Fixed) Now(context.Context) time.Time { return f.T }
