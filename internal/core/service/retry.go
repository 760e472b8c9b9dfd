package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/core/domain"
)

// RetryPolicy bounds how often a read-modify-write is repeated after a
// version conflict.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 10 * time.Millisecond}
}

// retryOnConflict runs fn until it succeeds, fails with anything other
// than domain.ErrConflict, or the attempts are used up.
func retryOnConflict(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return err
		}

		log.Debug().
			Str("op", op).
			Int("attempt", i).
			Err(err).
			Msg("version conflict, retrying")

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op)
		case <-time.After(time.Duration(i) * policy.Backoff):
		}
	}
	return errors.Wrapf(err, "%s: gave up after %d attempts", op, attempts)
}
