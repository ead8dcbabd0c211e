/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/signsync/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Location{},
		&models.Screen{},
		&models.Advertiser{},
		&models.AdAsset{},
		&models.ReconcileRun{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := backfillLinkedScreens(database); err != nil {
		return err
	}
	return nil
}

// backfillLinkedScreens marks screens paired before sync status existed.
func backfillLinkedScreens(database *gorm.DB) error {
	err := database.Model(&models.Screen{}).
		Where("remote_player_id > 0 AND (sync_status IS NULL OR sync_status = '' OR sync_status = ?)", models.SyncStatusNotLinked).
		Update("sync_status", models.SyncStatusLinked).Error
	if err != nil {
		return fmt.Errorf("backfill linked screens: %w", err)
	}
	return nil
}
