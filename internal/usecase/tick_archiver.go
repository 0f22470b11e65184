package usecase

import (
	"context"
	"fmt"
	"time"

	"BinPull/internal/domain/models"
	drepo "BinPull/internal/domain/repository"
	"BinPull/pkg/logger"
)

// TickArchiver batches live ticks into the tick archive. Add never blocks the
// session loop; when the queue is full the tick is dropped and counted.
type TickArchiver struct {
	store   drepo.TickArchive
	metrics drepo.Metrics
	log     *logger.Logger
	batchSz int
	batchTO time.Duration
	in      chan models.Tick
}

// NewTickArchiver creates a TickArchiver flushing every batchSz ticks or
// batchTO, whichever comes first.
func NewTickArchiver(
	store drepo.TickArchive,
	metrics drepo.Metrics,
	log *logger.Logger,
	batchSz int,
	batchTO time.Duration,
) *TickArchiver {
	if batchSz <= 0 {
		batchSz = 1000
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TickArchiver{
		store:   store,
		metrics: metrics,
		log:     log,
		batchSz: batchSz,
		batchTO: batchTO,
		in:      make(chan models.Tick, batchSz*4),
	}
}

func (a *TickArchiver) Add(t models.Tick) {
	select {
	case a.in <- t:
	default:
		a.metrics.RecordEventDropped("tick_archive")
	}
}

// Run drains the queue until ctx ends, then flushes what is left.
func (a *TickArchiver) Run(ctx context.Context) {
	batch := make([]models.Tick, 0, a.batchSz)
	timer := time.NewTimer(a.batchTO)
	defer timer.Stop()

	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := a.ProcessBatch(fctx, batch); err != nil {
			a.log.Warn("archiver: flush failed", logger.Int("ticks", len(batch)), logger.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case t := <-a.in:
					batch = append(batch, t)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return
		case t := <-a.in:
			batch = append(batch, t)
			if len(batch) >= a.batchSz {
				flush(ctx)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(a.batchTO)
			}
		case <-timer.C:
			flush(ctx)
			timer.Reset(a.batchTO)
		}
	}
}

// ProcessBatch writes ticks to the archive.
func (a *TickArchiver) ProcessBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	start := time.Now()
	if err := a.store.StoreTicks(ctx, ticks); err != nil {
		a.metrics.RecordError("archive_ticks")
		return fmt.Errorf("process batch: %w", err)
	}
	a.metrics.RecordLatency("archive_ticks", time.Since(start).Seconds())
	return nil
}
