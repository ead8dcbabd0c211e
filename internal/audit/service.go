/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/models"
)

// actions maps bus events to audit actions.
var actions = map[events.EventType]models.AuditAction{
	events.EventReconcileAlreadyOK:  models.AuditActionScreenAlreadyOK,
	events.EventReconcileHealed:     models.AuditActionScreenHealed,
	events.EventReconcileHealFailed: models.AuditActionScreenHealFailed,
	events.EventReconcileNoPlaylist: models.AuditActionScreenNoPlaylist,
	events.EventRepairCompleted:     models.AuditActionRepairBatchCompleted,
	events.EventAdPublished:         models.AuditActionAdPublished,
	events.EventBaselinePublished:   models.AuditActionBaselinePublished,
	events.EventLegacyQuarantined:   models.AuditActionLegacyQuarantined,
	events.EventLegacyDeleted:       models.AuditActionLegacyDeleted,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Start subscribes to engine events and records them until ctx is done.
// Subscriptions are in place when Start returns.
func (s *Service) Start(ctx context.Context) {
	subs := make(map[events.EventType]events.Subscriber, len(actions))
	for t := range actions {
		subs[t] = s.bus.Subscribe(t)
	}
	merged := events.Merge(subs)

	go func() {
		<-ctx.Done()
		for t, sub := range subs {
			s.bus.Unsubscribe(t, sub)
		}
	}()

	go func() {
		s.logger.Info().Int("events", len(subs)).Msg("audit service started")
		for env := range merged {
			s.logAuditEntry(context.WithoutCancel(ctx), actions[env.Type], env.Payload)
		}
		s.logger.Info().Msg("audit service stopped")
	}()
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}

	if userID, ok := payload["user_id"].(string); ok && userID != "" {
		entry.UserID = &userID
	}
	switch {
	case payload["screen_id"] != nil:
		entry.ResourceType = "screen"
		entry.ResourceID, _ = payload["screen_id"].(string)
	case payload["advertiser_id"] != nil:
		entry.ResourceType = "advertiser"
		entry.ResourceID, _ = payload["advertiser_id"].(string)
	default:
		entry.ResourceType = "batch"
	}

	for k, v := range payload {
		switch k {
		case "user_id", "screen_id", "advertiser_id":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	ResourceID *string
	Action     *models.AuditAction
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query retrieves audit logs with filters.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
