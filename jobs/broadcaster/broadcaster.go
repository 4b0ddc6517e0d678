// Package broadcaster drains the trade journal to Kafka. It is the
// only consumer of the journal's NEW records: each record is marked
// SENT, published, then marked ACKED, so a crash between any two steps
// re-delivers instead of losing the trade (at-least-once).
package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"matchbook/infra/journal"
	"matchbook/metrics"
)

type Broadcaster struct {
	jrnl     *journal.Journal
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      zerolog.Logger
}

// Event is the published trade message.
type Event struct {
	V          int    `json:"v"`
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Seq        uint64 `json:"seq"`
	BuyID      uint64 `json:"buy_order_id"`
	SellID     uint64 `json:"sell_order_id"`
	Price      int64  `json:"price_ticks"`
	Qty        int64  `json:"qty_lots"`
	Ts         int64  `json:"ts"`
}

// New connects a synchronous producer to the given brokers.
func New(jrnl *journal.Journal, brokers []string, topic string, interval time.Duration, log zerolog.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(jrnl, producer, topic, interval, log), nil
}

// NewWithProducer wires an existing producer. Tests use this with the
// sarama mock producer.
func NewWithProducer(jrnl *journal.Journal, producer sarama.SyncProducer, topic string, interval time.Duration, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		jrnl:     jrnl,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}
}

// Run publishes pending records until ctx is cancelled. Callers run it
// in a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info().Str("topic", b.topic).Msg("broadcaster started")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.PublishPending()
			if err := b.jrnl.TruncateAcked(); err != nil {
				b.log.Warn().Err(err).Msg("journal truncate failed")
			}
		}
	}
}

// PublishPending delivers every stuck SENT record, then every NEW
// record, once each.
func (b *Broadcaster) PublishPending() {
	// SENT first: these are from a crashed or failed earlier pass.
	// Consumers de-duplicate on (instrument, seq).
	_ = b.jrnl.ScanByState(journal.StateSent, func(rec journal.Record) error {
		return b.publish(rec)
	})

	err := b.jrnl.ScanByState(journal.StateNew, func(rec journal.Record) error {
		return b.publish(rec)
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("journal scan failed")
	}
}

func (b *Broadcaster) publish(rec journal.Record) error {
	// Mark SENT before the send: a crash after the send but before the
	// ack mark must re-deliver, never lose.
	if err := b.jrnl.UpdateState(rec.Instrument, rec.Seq, journal.StateSent, rec.Retries+1); err != nil {
		return err
	}

	payload, err := json.Marshal(Event{
		V:          1,
		Type:       "trade",
		Instrument: rec.Instrument,
		Seq:        rec.Seq,
		BuyID:      rec.BuyID,
		SellID:     rec.SellID,
		Price:      rec.Price,
		Qty:        rec.Qty,
		Ts:         rec.Ts,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(rec.Instrument),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		b.log.Warn().Err(err).
			Str("instrument", rec.Instrument).
			Uint64("seq", rec.Seq).
			Msg("trade publish failed, will retry")
		return nil
	}

	if err := b.jrnl.UpdateState(rec.Instrument, rec.Seq, journal.StateAcked, rec.Retries+1); err != nil {
		return err
	}
	metrics.BroadcastsPublished.Inc()
	return nil
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
