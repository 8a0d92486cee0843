/*
Package models defines the data structures shared across mcwatch.

Core Types:

UserConfig is the only persisted record, one row per chat user:

	type UserConfig struct {
		UserID        int64     // Chat transport user identifier, primary key
		ServerAddress *string   // "host:port", NULL until configured
		PlayerName    *string   // In-game name, NULL until configured
		UpdatedAt     time.Time // Last write
	}

PlayerStatus is the transient result of a single probe:

	const (
		StatusUnknown     // no probe has completed yet
		StatusOnline      // server reachable, player in the sample
		StatusOffline     // server reachable, player not in the sample
		StatusUnreachable // dial, handshake or status exchange failed
	)

Database Integration:

UserConfig carries bun tags for the users table. The row is created by the
first write that supplies both fields and is never deleted by a settings reset;
resets set both columns to NULL.

Monitoring state is not modelled here. Active monitors live in memory only and
are owned by the monitor package.
*/
package models
