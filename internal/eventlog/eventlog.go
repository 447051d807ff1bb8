// Package eventlog is the audit/notification collaborator: every mutation and
// transition posts an event here. Posting is fire-and-forget from the core's
// perspective; sink failures are logged, never surfaced to the caller.
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Event is one audit entry describing who did what to which entity.
type Event struct {
	EventID    string    `json:"event_id" gorm:"type:uuid;primaryKey"`
	EntityKind string    `json:"entity_kind" gorm:"index:idx_event_entity"`
	EntityID   string    `json:"entity_id" gorm:"type:uuid;index:idx_event_entity"`
	TenantID   string    `json:"tenant_id" gorm:"type:uuid;index"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	Action     string    `json:"action"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Published  bool      `json:"published" gorm:"default:false"`
}

// Sink receives audit events.
type Sink interface {
	PostEvent(ctx context.Context, event Event)
}

// GormSink persists audit events to the database.
type GormSink struct {
	db *gorm.DB
}

// NewGormSink creates a database-backed event sink.
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// PostEvent stores the event. Errors are logged and swallowed.
func (s *GormSink) PostEvent(ctx context.Context, event Event) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		log.Error().Err(err).
			Str("entityKind", event.EntityKind).
			Str("entityID", event.EntityID).
			Str("action", event.Action).
			Msg("Failed to store audit event")
		return
	}

	log.Info().
		Str("entityKind", event.EntityKind).
		Str("entityID", event.EntityID).
		Str("action", event.Action).
		Msg("Audit event stored")
}

// GetUnpublished returns stored events not yet pushed to the message bus.
func (s *GormSink) GetUnpublished(ctx context.Context, limit int) ([]Event, error) {
	var events []Event
	err := s.db.WithContext(ctx).
		Where("published = ?", false).
		Order("timestamp ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkPublished flags an event as pushed to the message bus.
func (s *GormSink) MarkPublished(ctx context.Context, eventID string) error {
	return s.db.WithContext(ctx).
		Model(&Event{}).
		Where("event_id = ?", eventID).
		Update("published", true).Error
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

// PostEvent posts to every sink in order.
func (m MultiSink) PostEvent(ctx context.Context, event Event) {
	for _, s := range m {
		s.PostEvent(ctx, event)
	}
}

// NopSink discards events; used in tests and when auditing is disabled.
type NopSink struct{}

// PostEvent does nothing.
func (NopSink) PostEvent(context.Context, Event) {}
