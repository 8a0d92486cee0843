package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mcwatch/pkg/models"
)

// GetUserConfig returns the stored settings for userID. An unknown user gets a
// config with both fields nil; no row is created.
func (db *DB) GetUserConfig(ctx context.Context, userID int64) (models.UserConfig, error) {
	var cfg models.UserConfig
	err := db.NewSelect().
		Model(&cfg).
		Where("user_id = ?", userID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserConfig{UserID: userID}, nil
		}
		return models.UserConfig{}, fmt.Errorf("error querying user config: %w", err)
	}

	return cfg, nil
}

// SetUserConfig writes the fields that are non-nil.
//
//   - both set: insert the row or overwrite both columns
//   - one set: update that column on an existing row; no row means no-op
//   - none set: clear both columns on an existing row; no row means no-op
//
// A brand-new user therefore only gets a row once both values are known.
func (db *DB) SetUserConfig(ctx context.Context, userID int64, serverAddress, playerName *string) error {
	now := time.Now()

	switch {
	case serverAddress != nil && playerName != nil:
		cfg := &models.UserConfig{
			UserID:        userID,
			ServerAddress: serverAddress,
			PlayerName:    playerName,
			UpdatedAt:     now,
		}
		_, err := db.NewInsert().
			Model(cfg).
			On("CONFLICT (user_id) DO UPDATE").
			Set("server_address = EXCLUDED.server_address").
			Set("player_name = EXCLUDED.player_name").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error upserting user config: %w", err)
		}

	case serverAddress != nil:
		_, err := db.NewUpdate().
			Model((*models.UserConfig)(nil)).
			Set("server_address = ?", *serverAddress).
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error updating server address: %w", err)
		}

	case playerName != nil:
		_, err := db.NewUpdate().
			Model((*models.UserConfig)(nil)).
			Set("player_name = ?", *playerName).
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error updating player name: %w", err)
		}

	default:
		_, err := db.NewUpdate().
			Model((*models.UserConfig)(nil)).
			Set("server_address = NULL").
			Set("player_name = NULL").
			Set("updated_at = ?", now).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error resetting user config: %w", err)
		}
	}

	return nil
}

// GetConfiguredUsers returns every user with both a server and a player set.
func (db *DB) GetConfiguredUsers(ctx context.Context) ([]models.UserConfig, error) {
	var users []models.UserConfig
	err := db.NewSelect().
		Model(&users).
		Where("server_address IS NOT NULL").
		Where("player_name IS NOT NULL").
		Order("user_id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting configured users: %w", err)
	}

	return users, nil
}
