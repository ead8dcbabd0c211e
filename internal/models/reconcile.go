/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ReconcileRun persists one controller trace for auditing. Nothing reads it
// back to make decisions.
type ReconcileRun struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	CorrelationID string         `gorm:"type:varchar(64);uniqueIndex"`
	ScreenID      string         `gorm:"type:uuid;index"`
	Trigger       string         `gorm:"type:varchar(32)"`
	Outcome       string         `gorm:"type:varchar(32);index"`
	Diagnostic    string         `gorm:"type:text"`
	Steps         []any          `gorm:"type:jsonb;serializer:json"`
	Before        map[string]any `gorm:"type:jsonb;serializer:json"`
	After         map[string]any `gorm:"type:jsonb;serializer:json"`
	StartedAt     time.Time      `gorm:"index"`
	FinishedAt    time.Time
	CreatedAt     time.Time
}

// TableName returns the table name for GORM.
func (ReconcileRun) TableName() string {
	return "reconcile_runs"
}
