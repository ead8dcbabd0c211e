/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for operations that touch the remote platform.
const (
	AuditActionScreenAlreadyOK      AuditAction = "screen.already_ok"
	AuditActionScreenHealed         AuditAction = "screen.healed"
	AuditActionScreenHealFailed     AuditAction = "screen.heal_failed"
	AuditActionScreenNoPlaylist     AuditAction = "screen.no_expected_playlist"
	AuditActionAdPublished          AuditAction = "ad.published"
	AuditActionBaselinePublished    AuditAction = "baseline.published"
	AuditActionLegacyQuarantined    AuditAction = "legacy.quarantined"
	AuditActionLegacyDeleted        AuditAction = "legacy.deleted"
	AuditActionRepairBatchCompleted AuditAction = "repair.completed"
)

// AuditLog records remote mutations for operators.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	UserID       *string        `gorm:"type:varchar(64);index:idx_audit_user"` // NULL for scheduled runs
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "screen", "advertiser", "playlist"
	ResourceID   string         `gorm:"type:varchar(64)"`
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
