package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// PullerOptions configures Run's fetch loop.
type PullerOptions struct {
	Subject   string
	Durable   string
	BatchSize int
	FetchWait time.Duration
}

func (o PullerOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return 10
	}
	return o.BatchSize
}

func (o PullerOptions) fetchWait() time.Duration {
	if o.FetchWait <= 0 {
		return 5 * time.Second
	}
	return o.FetchWait
}

// Run pull-subscribes to opts.Subject under opts.Durable and feeds every
// fetched message through adapter.Process until ctx is canceled.
func Run(ctx context.Context, js nats.JetStreamContext, adapter *Adapter, opts PullerOptions) error {
	sub, err := js.PullSubscribe(opts.Subject, opts.Durable)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(opts.batchSize(), nats.MaxWait(opts.fetchWait()))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			adapter.Logger.Error("fetch failed", zap.String("subject", opts.Subject), zap.Error(err))
			continue
		}

		for _, m := range msgs {
			if procErr := adapter.Process(ctx, NatsMsg{Msg: m}); procErr != nil {
				adapter.Logger.Error("process failed", zap.String("subject", opts.Subject), zap.Error(procErr))
			}
		}
	}
}
