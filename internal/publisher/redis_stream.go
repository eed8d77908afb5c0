package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/pythia/internal/store"
)

const (
	// RunsStream carries one entry per pipeline run.
	RunsStream = "pipeline.runs"

	// DefaultMaxLen caps every stream, approximately.
	DefaultMaxLen = 1000
)

// PredictionsStream names the per-sport predictions stream.
func PredictionsStream(sport string) string { return "predictions." + sport }

// StreamAdder is the part of the redis client the publisher uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamPublisher publishes events to Redis streams
type RedisStreamPublisher struct {
	client StreamAdder
	maxLen int64
	now    func() time.Time
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client
func NewRedisStreamPublisher(client StreamAdder) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		maxLen: DefaultMaxLen,
		now:    time.Now,
	}
}

// PublishPredictions adds one entry holding the sport's predictions.
func (p *RedisStreamPublisher) PublishPredictions(ctx context.Context, sport string, preds []*store.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	return p.publish(ctx, PredictionsStream(sport), preds)
}

// PublishRunReport adds the run report to the runs stream.
func (p *RedisStreamPublisher) PublishRunReport(ctx context.Context, report any) error {
	return p.publish(ctx, RunsStream, report)
}

func (p *RedisStreamPublisher) publish(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", stream, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": p.now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
