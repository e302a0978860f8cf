package eventlogger

import (
	"context"
	"log/slog"
	"sync"
)

// Worker saves events in the background so producers never wait on storage.
type Worker struct {
	eventCh chan Event
	logger  EventLogger
	log     *slog.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(logger EventLogger, bufferSize int, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				w.log.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					event := <-w.eventCh
					if err := w.logger.Save(context.Background(), event); err != nil {
						w.log.Error("failed to save event during shutdown", "error", err, "event_type", event.Type)
					}
				}
				return
			case event := <-w.eventCh:
				if err := w.logger.Save(w.ctx, event); err != nil {
					w.log.Error("failed to save event", "error", err, "event_type", event.Type)
				}
			}
		}
	})
}

// Log enqueues an event and returns at once. A full buffer drops the event.
func (w *Worker) Log(event Event) bool {
	select {
	case w.eventCh <- event:
		return true
	default:
		w.log.Warn("event channel full, dropping event", "event_type", event.Type)
		return false
	}
}

// Shutdown stops the worker after saving whatever is still buffered.
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
