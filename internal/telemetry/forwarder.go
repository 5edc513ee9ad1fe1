package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/kordun/tresor/internal/retry"
	"github.com/kordun/tresor/internal/scorer"
	"github.com/kordun/tresor/internal/session"
)

// forwardBaseDelay is the initial backoff between forward attempts.
const forwardBaseDelay = 200 * time.Millisecond

// Forwarder delivers accepted batches to the scorer's ingest endpoint.
// Forwarding is off the evaluation path, so unlike Evaluate it may retry
// transient failures.
type Forwarder struct {
	client   scorer.Client
	attempts int
}

// NewForwarder creates a forwarder making up to attempts delivery tries.
func NewForwarder(client scorer.Client, attempts int) *Forwarder {
	if attempts <= 0 {
		attempts = 1
	}
	return &Forwarder{client: client, attempts: attempts}
}

// Forward delivers one batch. A 4xx from the scorer means the batch itself
// is refused and will not improve with retries.
func (f *Forwarder) Forward(ctx context.Context, sessionID string, stream session.Stream, payload []byte) error {
	return retry.Do(ctx, f.attempts, forwardBaseDelay, func() error {
		err := f.client.ForwardBatch(ctx, sessionID, string(stream), payload)
		var ue *scorer.UnavailableError
		if errors.As(err, &ue) && ue.Status >= 400 && ue.Status < 500 {
			return retry.Permanent(err)
		}
		return err
	})
}
