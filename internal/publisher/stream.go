// Package publisher fans newly opened opportunities out to Redis streams.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/arbscout/internal/models"
)

// streamAdder is the part of *redis.Client the publisher uses.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher publishes opportunities to a base stream and to a
// per-market stream derived from it.
type StreamPublisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher writing to stream and
// stream.<market_type>, each trimmed to roughly maxLen entries.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// StreamFor returns the per-market stream name for m.
func (p *StreamPublisher) StreamFor(m models.MarketType) string {
	return p.stream + "." + strings.ToLower(string(m))
}

// Publish adds every opportunity to both streams. It stops at the first
// failure.
func (p *StreamPublisher) Publish(ctx context.Context, cycleID string, opps []models.Opportunity) error {
	for i := range opps {
		if err := p.publishOne(ctx, cycleID, &opps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *StreamPublisher) publishOne(ctx context.Context, cycleID string, o *models.Opportunity) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling opportunity %s: %w", o.Key, err)
	}

	values := map[string]interface{}{
		"data":       string(data),
		"key":        o.Key,
		"cycle_id":   cycleID,
		"market":     string(o.Market),
		"profit_pct": strconv.FormatFloat(o.ProfitPercentage, 'f', 4, 64),
	}

	for _, stream := range []string{p.StreamFor(o.Market), p.stream} {
		err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: values,
		}).Err()
		if err != nil {
			return fmt.Errorf("publishing %s to %s: %w", o.Key, stream, err)
		}
	}
	return nil
}
