package fanout

import (
	"context"
	"errors"

	"eventpipe/internal/types"
)

// Forwarder mirrors pipeline.Forwarder so this package does not import it.
type Forwarder interface {
	Forward(ctx context.Context, ev *types.Event) error
}

// Multi calls every forwarder in order. One failing target does not stop
// the others; the failures are joined.
type Multi []Forwarder

func (m Multi) Forward(ctx context.Context, ev *types.Event) error {
	var errs []error
	for _, f := range m {
		if err := f.Forward(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
