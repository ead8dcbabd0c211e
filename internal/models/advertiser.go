/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ApprovalStatus tracks review of an ad asset.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Advertiser is the subset of the advertiser record the targeting engine reads.
type Advertiser struct {
	ID            string   `gorm:"type:uuid;primaryKey"`
	Name          string   `gorm:"index"`
	PackageType   string   `gorm:"type:varchar(16)"`
	TargetCities  []string `gorm:"type:jsonb;serializer:json"`
	TargetRegions []string `gorm:"type:jsonb;serializer:json"`
	AdAssets      []AdAsset `gorm:"foreignKey:AdvertiserID"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AdAsset is one creative. RemoteMediaID is set by the media pipeline once the
// upload is ready on the remote platform.
type AdAsset struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	AdvertiserID    string         `gorm:"type:uuid;index"`
	Title           string
	RemoteMediaID   *int64         `gorm:"index"`
	Status          ApprovalStatus `gorm:"type:varchar(16);default:pending"`
	DurationSeconds int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Approved reports whether the asset passed review.
func (a *AdAsset) Approved() bool {
	return a != nil && a.Status == ApprovalApproved
}
