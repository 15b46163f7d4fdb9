package delivery

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

// Multi sends to every channel. A send fails only when every channel
// failed; the error lists each failure.
type Multi struct {
	log      logx.Logger
	channels []Channel
}

func NewMulti(log logx.Logger, chs ...Channel) *Multi { return &Multi{log: log, channels: chs} }

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Name())
	}
	return strings.Join(names, "+")
}

// Probe grants when any channel grants and denies only when all deny.
func (m *Multi) Probe(ctx context.Context) notify.Permission {
	if len(m.channels) == 0 {
		return notify.PermissionDenied
	}
	denied := 0
	for _, c := range m.channels {
		switch c.Probe(ctx) {
		case notify.PermissionGranted:
			return notify.PermissionGranted
		case notify.PermissionDenied:
			denied++
		}
	}
	if denied == len(m.channels) {
		return notify.PermissionDenied
	}
	return notify.PermissionUndetermined
}

func (m *Multi) Send(ctx context.Context, n notify.Notification) error {
	var errs *multierror.Error
	for _, c := range m.channels {
		if err := c.Send(ctx, n); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if errs != nil && len(errs.Errors) < len(m.channels) {
		// Partial success is not retried.
		m.log.Warn("delivery partly failed", logx.String("id", n.ID), logx.Err(errs))
		return nil
	}
	return errs.ErrorOrNil()
}

func (m *Multi) Close() error {
	var errs *multierror.Error
	for _, c := range m.channels {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
