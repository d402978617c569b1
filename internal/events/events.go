// Package events publishes sync notifications on Redis pub/sub for the
// gateway and other downstream consumers.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/model"
)

// ChannelJobsSynced carries one JobsSynced message per finished source sync.
const ChannelJobsSynced = "EVENT_JOBS_SYNCED"

// JobsSynced is the payload published on ChannelJobsSynced.
type JobsSynced struct {
	Type        string       `json:"type"`
	RunID       string       `json:"runId"`
	Source      model.Source `json:"source"`
	Success     bool         `json:"success"`
	JobsFetched int          `json:"jobsFetched"`
	JobsCreated int          `json:"jobsCreated"`
	JobsUpdated int          `json:"jobsUpdated"`
	DurationMS  int64        `json:"durationMs"`
}

// NewJobsSynced builds the event for one sync result.
func NewJobsSynced(r model.SyncResult) JobsSynced {
	return JobsSynced{
		Type:        ChannelJobsSynced,
		RunID:       r.RunID,
		Source:      r.Source,
		Success:     r.Success,
		JobsFetched: r.JobsFetched,
		JobsCreated: r.JobsCreated,
		JobsUpdated: r.JobsUpdated,
		DurationMS:  r.DurationMS,
	}
}

// Publisher delivers events. Delivery is best effort: failures are logged,
// never returned.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any)
}

// RedisPublisher publishes JSON payloads with PUBLISH.
type RedisPublisher struct {
	rdb redis.Cmdable
	log logrus.FieldLogger
}

// NewRedisPublisher wraps an already-verified client.
func NewRedisPublisher(rdb redis.Cmdable, log logrus.FieldLogger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, log: log.WithField("component", "events")}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		p.log.WithField("channel", channel).WithError(err).Error("marshal event")
		return
	}
	if err := p.rdb.Publish(ctx, channel, b).Err(); err != nil {
		p.log.WithField("channel", channel).WithError(err).Warn("publish failed")
	}
}

// Nop discards every event. It stands in when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) {}
