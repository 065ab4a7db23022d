// Package notify delivers alarm notifications to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/darshan-rambhia/netvault/internal/model"
)

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// Fanout sends each notification to every provider. One failing channel
// does not stop delivery to the others.
type Fanout []Provider

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Send(ctx context.Context, n model.Notification) error {
	var errs []error
	for _, p := range f {
		if err := p.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
