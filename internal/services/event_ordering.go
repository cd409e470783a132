package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace-sync-service/internal/models"
)

const eventVersionCacheTTL = 15 * time.Minute

// EventOrdering detects webhooks that arrive after a newer event for the same
// resource was already applied. Events without a timestamp are never stale.
type EventOrdering struct {
	db *gorm.DB

	// newest applied event time per recently seen resource; a lower bound of
	// the table
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewEventOrdering creates an ordering guard over the event version table
func NewEventOrdering(db *gorm.DB) *EventOrdering {
	return newEventOrdering(db, eventVersionCacheTTL)
}

func newEventOrdering(db *gorm.DB, ttl time.Duration) *EventOrdering {
	return &EventOrdering{
		db:    db,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func versionKey(connectionID uuid.UUID, resourceType, resourceID string) string {
	return fmt.Sprintf("%s:%s:%s", connectionID, resourceType, resourceID)
}

// IsStale reports whether a newer event for the resource has been applied
func (o *EventOrdering) IsStale(ctx context.Context, connectionID uuid.UUID, resourceType, resourceID string, eventTime time.Time) (bool, error) {
	if eventTime.IsZero() || resourceID == "" {
		return false, nil
	}

	key := versionKey(connectionID, resourceType, resourceID)
	if cached, ok := o.cached(key); ok && eventTime.Before(cached) {
		return true, nil
	}

	var current models.ResourceEventVersion
	err := o.db.WithContext(ctx).
		Where("connection_id = ? AND resource_type = ? AND resource_id = ?", connectionID, resourceType, resourceID).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load event version: %w", err)
	}

	o.remember(key, current.EventTime)
	return eventTime.Before(current.EventTime), nil
}

// Record stores eventTime as the newest applied state unless a newer one is
// already stored
func (o *EventOrdering) Record(ctx context.Context, connectionID uuid.UUID, resourceType, resourceID, eventID string, eventTime time.Time) error {
	if eventTime.IsZero() || resourceID == "" {
		return nil
	}

	version := &models.ResourceEventVersion{
		ConnectionID: connectionID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		EventTime:    eventTime,
		LastEventID:  eventID,
		UpdatedAt:    time.Now(),
	}
	err := o.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "resource_type"}, {Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_time", "last_event_id", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "marketplace_event_versions.event_time < excluded.event_time"},
		}},
	}).Create(version).Error
	if err != nil {
		return fmt.Errorf("failed to record event version: %w", err)
	}

	o.remember(versionKey(connectionID, resourceType, resourceID), eventTime)
	return nil
}

func (o *EventOrdering) cached(key string) (time.Time, bool) {
	v, ok := o.cache.Get(key)
	if !ok {
		return time.Time{}, false
	}
	return v.(time.Time), true
}

func (o *EventOrdering) remember(key string, eventTime time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if current, ok := o.cached(key); !ok || eventTime.After(current) {
		o.cache.SetDefault(key, eventTime)
	}
}
