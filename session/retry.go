package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/testfarm/testfarm/devices"
)

// RetryDialer wraps a Dialer with exponential backoff. Device agents drop the
// control connection between runs and take a moment to accept a new one, so a
// failed first dial is normal.
type RetryDialer struct {
	Base        Dialer
	MakeBackOff func() backoff.BackOff
}

func NewRetryDialer(base Dialer) *RetryDialer {
	return &RetryDialer{
		Base: base,
		MakeBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxElapsedTime = 15 * time.Second
			return b
		},
	}
}

func (d *RetryDialer) Dial(ctx context.Context, device devices.Device) (Session, error) {
	var session Session
	try := 1
	op := func() error {
		var err error
		session, err = d.Base.Dial(ctx, device)
		if err != nil {
			log.Debugf("Dial %v try #%d: %v", device.Id(), try, err)
			try++
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(d.MakeBackOff(), ctx)); err != nil {
		return nil, err
	}
	return session, nil
}
