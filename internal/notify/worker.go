package notify

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"identity-portal/internal/logging"
)

const (
	deliverAttempts = 3
	deliverBackoff  = 2 * time.Second
	deliverTimeout  = 15 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Worker consumes messages written by KafkaNotifier and hands them to a delivering
// Notifier (normally a RelayClient). A record is committed once delivered, or once
// it is undecodable or has failed every attempt, so one bad message cannot stall the partition.
type Worker struct {
	reader  messageReader
	deliver Notifier
	log     logging.Logger
	backoff time.Duration
}

// NewKafkaReader returns a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
}

// NewWorker returns a Worker reading from r and delivering through deliver.
func NewWorker(r messageReader, deliver Notifier, log logging.Logger) *Worker {
	return &Worker{reader: r, deliver: deliver, log: logging.OrDiscard(log), backoff: deliverBackoff}
}

// Run consumes until ctx is done. It returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		rec, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn(ctx, "worker: kafka fetch failed", "error", err)
			if !sleep(ctx, w.backoff) {
				return nil
			}
			continue
		}
		w.handle(ctx, rec)
		if err := w.reader.CommitMessages(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Warn(ctx, "worker: commit failed", "offset", rec.Offset, "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, rec kafka.Message) {
	msg, err := DecodeMessage(rec.Value)
	if err != nil {
		w.log.Error(ctx, "worker: dropping undecodable message", "offset", rec.Offset, "error", err)
		return
	}
	for attempt := 1; attempt <= deliverAttempts; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err = w.deliver.Send(dctx, msg)
		cancel()
		if err == nil {
			return
		}
		w.log.Warn(ctx, "worker: delivery failed", "kind", string(msg.Kind), "attempt", attempt, "error", err)
		if attempt < deliverAttempts && !sleep(ctx, w.backoff*time.Duration(attempt)) {
			return
		}
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		w.log.Error(ctx, "worker: giving up on message", "kind", string(msg.Kind), "offset", rec.Offset)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
