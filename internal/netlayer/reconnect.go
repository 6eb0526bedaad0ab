package netlayer

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/omochice/bsc-netlayer/internal/registry"
	"github.com/omochice/bsc-netlayer/pkg/wserr"
)

var errInitiateFailed = errors.New("initiate connection failed")

// RetryPolicy bounds caller-side connection retries.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// InitiateWithRetry calls InitiateConnection until it succeeds, ctx is done
// or the policy is exhausted. Failures that another attempt cannot fix,
// such as an unsupported scheme or unreadable key material, stop at once.
func (b *Bridge) InitiateWithRetry(ctx context.Context, uri []byte, p RetryPolicy, opts ...registry.AddOption) error {
	target := string(uri)
	return retry.Do(
		func() error {
			if b.InitiateConnection(uri, opts...) {
				return nil
			}
			s, _ := b.Status(target)
			err := wserr.New(s.Code, "initiate", errInitiateFailed)
			if permanent(s.Code) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(max(p.Attempts, 1)),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Info("retrying connection",
				zap.String("uri", target),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
}

// Reconnect drops the registry entry for uri and connects again.
func (b *Bridge) Reconnect(ctx context.Context, uri []byte, p RetryPolicy, opts ...registry.AddOption) error {
	b.TerminateConnection(uri)
	return b.InitiateWithRetry(ctx, uri, p, opts...)
}

func permanent(code wserr.Code) bool {
	switch code {
	case wserr.CodeUnsupportedScheme,
		wserr.CodeTLSClientCertificateError,
		wserr.CodeTLSServerCertificateError:
		return true
	default:
		return false
	}
}
