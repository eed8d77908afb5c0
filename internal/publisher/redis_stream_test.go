package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

type fakeStreams struct {
	added []*redis.XAddArgs
	err   error
}

func (f *fakeStreams) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestPublishPredictions(t *testing.T) {
	streams := &fakeStreams{}
	p := NewRedisStreamPublisher(streams)
	p.now = func() time.Time { return time.Unix(1763316000, 0) }

	preds := []*store.Prediction{{GameID: "401", Sport: "nfl"}}
	require.NoError(t, p.PublishPredictions(context.Background(), "nfl", preds))
	require.NoError(t, p.PublishPredictions(context.Background(), "nba", nil))

	require.Len(t, streams.added, 1)
	args := streams.added[0]
	assert.Equal(t, "predictions.nfl", args.Stream)
	assert.Equal(t, int64(DefaultMaxLen), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, int64(1763316000), values["timestamp"])

	var got []*store.Prediction
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &got))
	assert.Equal(t, "401", got[0].GameID)
}

func TestPublishRunReportError(t *testing.T) {
	streams := &fakeStreams{err: errors.New("READONLY")}

	err := NewRedisStreamPublisher(streams).PublishRunReport(context.Background(), map[string]string{"run_id": "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd pipeline.runs")
	assert.Equal(t, RunsStream, streams.added[0].Stream)
}
