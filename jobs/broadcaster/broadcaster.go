// Package broadcaster drains the notification journal into Kafka.
package broadcaster

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"matchbook/infra/journal"
	"matchbook/notify"
)

type Broadcaster struct {
	journal  *journal.Journal
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(j *journal.Journal, brokers []string, topic string, interval time.Duration) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		journal:  j,
		producer: producer,
		topic:    topic,
		interval: interval,
	}, nil
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("[broadcaster] started")

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
				if n, err := b.journal.PurgeAcked(); err != nil {
					log.Printf("[broadcaster] purge failed: %v", err)
				} else if n > 0 {
					log.Printf("[broadcaster] purged %d delivered events", n)
				}
			}
		}
	}()
}

// drainOnce walks pending events. Mark SENT before publishing and ACKED
// after, so a crash in between replays the event rather than losing it.
func (b *Broadcaster) drainOnce() {
	_ = b.journal.ScanPending(func(seq uint64, rec journal.Record) error {
		if err := b.journal.MarkSent(seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.ByteEncoder(ownerKey(rec.Payload)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			log.Printf("[broadcaster] send failed, will retry: %v", err)
			return nil // leave SENT, retried next pass
		}

		return b.journal.MarkAcked(seq)
	})
}

// ownerKey partitions the notification topic per owner so each client
// reads its events in order.
func ownerKey(payload []byte) []byte {
	var ev notify.Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Owner == "" {
		return []byte("unknown")
	}
	return []byte(ev.Owner)
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
