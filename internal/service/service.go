package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func now() time.Time {
	return time.Now().UTC()
}

func newID() string {
	return uuid.NewString()
}

// newMessageID returns a lexically time-ordered id.
func newMessageID() string {
	return ulid.Make().String()
}

func storeErr(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return apperr.Unavailable(op+" failed", err)
}

func publish(bus domain.EventBus, events []domain.Envelope) {
	if bus == nil || len(events) == 0 {
		return
	}
	for _, e := range events {
		metrics.EventsPublished.WithLabelValues(string(e.Kind)).Inc()
	}
	bus.Publish(events...)
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}

// viewChat hides other participants' unread counters.
func viewChat(chat *domain.Chat, viewer string) *domain.Chat {
	v := *chat
	v.Unread = map[string]int{viewer: chat.Unread[viewer]}
	return &v
}
