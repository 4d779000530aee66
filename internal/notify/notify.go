package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier delivers one text message. Implementations must honour ctx.
type Notifier interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Multi fans out to every notifier and joins the failures.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Send(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop is used when no channel is configured.
type Nop struct{}

func (Nop) Name() string                       { return "nop" }
func (Nop) Send(context.Context, string) error { return nil }
