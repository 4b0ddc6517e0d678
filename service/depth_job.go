package service

import (
	"context"
	"encoding/json"
	"time"

	"matchbook/infra/kafka"
)

// StartDepthPublisher periodically publishes an aggregated depth
// snapshot per instrument, keyed by symbol. It blocks until ctx is
// cancelled, so callers run it in a goroutine.
func (e *Engine) StartDepthPublisher(ctx context.Context, p *kafka.Producer, interval time.Duration, levels int) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.publishDepth(ctx, p, levels)
		}
	}
}

func (e *Engine) publishDepth(ctx context.Context, p *kafka.Producer, levels int) {
	for _, sym := range e.Instruments() {
		d, err := e.Depth(sym, levels)
		if err != nil {
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			e.log.Error().Err(err).Str("instrument", sym).Msg("depth marshal failed")
			continue
		}
		if err := p.Send(ctx, []byte(sym), payload); err != nil {
			e.log.Warn().Err(err).Str("instrument", sym).Msg("depth publish failed")
		}
	}
}
