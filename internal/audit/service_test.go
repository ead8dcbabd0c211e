/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/signsync/internal/events"
	"github.com/friendsincode/signsync/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestStartRecordsEngineEvents(t *testing.T) {
	db := openTestDB(t)
	bus := events.NewBus()
	svc := NewService(db, bus, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	bus.Publish(events.EventReconcileHealFailed, events.Payload{
		"screen_id":      "s-1",
		"correlation_id": "cid-1",
		"diagnostic":     "expected playlist:42, actual layout:7 after 4 attempts",
	})

	action := models.AuditActionScreenHealFailed
	var (
		logs []models.AuditLog
		err  error
	)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		logs, _, err = svc.Query(context.Background(), QueryFilters{Action: &action})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(logs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(logs) != 1 {
		t.Fatalf("audit entries = %d", len(logs))
	}
	got := logs[0]
	if got.ResourceType != "screen" || got.ResourceID != "s-1" || got.Details["correlation_id"] != "cid-1" {
		t.Fatalf("entry = %+v", got)
	}
}

func TestLogFillsDefaults(t *testing.T) {
	svc := NewService(openTestDB(t), events.NewBus(), zerolog.Nop())
	fixed := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	entry := &models.AuditLog{Action: models.AuditActionLegacyQuarantined}
	if err := svc.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entry.ID == "" || !entry.Timestamp.Equal(fixed) || entry.Details == nil {
		t.Fatalf("entry = %+v", entry)
	}
}
