package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserConfig is the per-user settings row. Both fields are nullable and are
// cleared, not deleted, on reset.
type UserConfig struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	UserID        int64     `bun:",pk"`
	ServerAddress *string   `bun:"server_address"`
	PlayerName    *string   `bun:"player_name"`
	UpdatedAt     time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// Complete reports whether both the server address and the player name are set.
func (c UserConfig) Complete() bool {
	return c.ServerAddress != nil && *c.ServerAddress != "" &&
		c.PlayerName != nil && *c.PlayerName != ""
}

// Server returns the configured address or "" when unset.
func (c UserConfig) Server() string {
	if c.ServerAddress == nil {
		return ""
	}
	return *c.ServerAddress
}

// Player returns the configured player name or "" when unset.
func (c UserConfig) Player() string {
	if c.PlayerName == nil {
		return ""
	}
	return *c.PlayerName
}
