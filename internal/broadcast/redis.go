package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 2 * time.Second

// NewRedis publishes every event as JSON on Channel(meetingID).
func NewRedis(rdb *redis.Client, log *logrus.Entry) Broadcaster {
	return publisher{
		now: time.Now,
		publish: func(ctx context.Context, e Event) {
			b, err := json.Marshal(e)
			if err != nil {
				log.WithError(err).WithField("type", e.Type).Error("broadcast encode failed")
				return
			}
			// detached from the caller, bounded by publishTimeout
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			defer cancel()
			if err := rdb.Publish(ctx, Channel(e.MeetingID), b).Err(); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"meeting_id": e.MeetingID,
					"type":       e.Type,
				}).Warn("broadcast publish failed")
			}
		},
	}
}
