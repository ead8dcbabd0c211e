/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"
)

// SyncStatus describes how far a screen's local record agrees with the remote platform.
type SyncStatus string

const (
	SyncStatusNotLinked SyncStatus = "not_linked"
	SyncStatusLinked    SyncStatus = "linked"
	SyncStatusSynced    SyncStatus = "synced"
)

// LocationStatus enumerates location lifecycle states.
type LocationStatus string

const (
	LocationStatusActive   LocationStatus = "active"
	LocationStatusInactive LocationStatus = "inactive"
	LocationStatusPending  LocationStatus = "pending"
)

// Screen is the local record of a physical signage device.
type Screen struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"index"`
	RemotePlayerID int64     `gorm:"index"` // 0 when the device is not linked yet
	LocationID     *string   `gorm:"type:uuid;index"`
	Location       *Location `gorm:"foreignKey:LocationID"`

	// Assigned remote playlist. Only the reconciler and synchronizer write these.
	PlaylistID   *int64
	PlaylistName string `gorm:"type:varchar(255)"`
	ItemCount    int

	LastPushAt       *time.Time
	LastPushResult   string `gorm:"type:varchar(32)"`
	LastPushError    string `gorm:"type:text"`
	LastVerifyAt     *time.Time
	LastVerifyResult string `gorm:"type:varchar(32)"`
	LastVerifyError  string `gorm:"type:text"`

	SyncStatus SyncStatus `gorm:"type:varchar(16);default:not_linked"`
	City       string     `gorm:"type:varchar(128)"`
	RegionCode string     `gorm:"type:varchar(16)"`
	// Deactivated screens are kept, never deleted. No column default: gorm
	// would store a false Active as the default on create.
	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether the screen is paired with a remote player.
func (s *Screen) Linked() bool {
	return s != nil && s.RemotePlayerID > 0
}

// EffectiveCity returns the screen city, falling back to its location.
func (s *Screen) EffectiveCity() string {
	if c := strings.TrimSpace(s.City); c != "" {
		return c
	}
	if s.Location != nil {
		return strings.TrimSpace(s.Location.City)
	}
	return ""
}

// EffectiveRegion returns the screen region code, falling back to its location.
func (s *Screen) EffectiveRegion() string {
	if r := strings.TrimSpace(s.RegionCode); r != "" {
		return r
	}
	if s.Location != nil {
		return strings.TrimSpace(s.Location.RegionCode)
	}
	return ""
}

// Location owns screens and carries ad eligibility flags.
type Location struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	Name          string         `gorm:"uniqueIndex"`
	Status        LocationStatus `gorm:"type:varchar(16);default:pending"`
	ReadyForAds   bool
	PausedByAdmin bool
	City          string `gorm:"type:varchar(128)"`
	RegionCode    string `gorm:"type:varchar(16)"`

	// Canonical location playlist, used as expected source when a screen has none.
	PlaylistID *int64

	Screens   []Screen `gorm:"foreignKey:LocationID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the location is live.
func (l *Location) Active() bool {
	return l != nil && l.Status == LocationStatusActive
}
