package eventbus

import (
	"context"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/pkg/logger"
)

// Forward drains a subscription into an external sink until ctx ends or the
// subscription closes. Sink failures are logged and counted.
func Forward(ctx context.Context, sub *Subscription, sink domrepo.EventSink, lg *logger.Logger, metrics domrepo.Metrics) {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			start := time.Now()
			if err := publish(ctx, sink, e); err != nil {
				metrics.RecordError("event_sink")
				lg.Warn("eventbus: sink publish failed",
					logger.String("kind", string(e.Kind)),
					logger.String("session_id", e.SessionID),
					logger.Error(err))
				continue
			}
			metrics.RecordLatency("event_sink", time.Since(start).Seconds())
		}
	}
}

func publish(ctx context.Context, sink domrepo.EventSink, e models.Event) error {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sink.Publish(pctx, e)
}
