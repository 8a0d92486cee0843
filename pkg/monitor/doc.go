/*
Package monitor runs the per-user polling loops that watch whether a player is
online on a Minecraft server and notify the user when that changes.

Key Components:

  - Registry: process-wide owner of every active monitor, keyed by user ID
  - Prober: the status client contract (Probe, Reachable)
  - Notifier: the chat transport contract (Send)
  - Info: read-only snapshot of a running monitor

Registry Methods:

	Start:       admission check, then schedule ticks for the user
	Stop:        cancel the user's monitor
	IsActive:    whether the user has a running monitor
	Lookup:      snapshot of the user's monitor
	ActiveCount: number of running monitors
	StopAll:     stop everything and refuse new monitors (shutdown)

Lifecycle:

Start reserves the user's slot, performs one synchronous Reachable check and
fails fast with ErrUnreachable when it does not pass. On success the monitor
starts with last-known status "unknown", ticks once after Settings.FirstDelay
and then every Settings.Interval.

Each tick probes the server. A result equal to the last-known status is
dropped; anything else becomes the new last-known status and exactly one
notification is sent. Unreachable is an ordinary status, so an outage is
reported once rather than on every tick. Delivery errors are logged and the
status is not rolled back.

Errors:

	ErrAlreadyActive  the user already has a monitor
	ErrConfigMissing  server address or player name is empty
	ErrUnreachable    the admission check failed
	ErrNotActive      Stop on a user without a monitor
	ErrClosed         Start after StopAll

Thread Safety:

All Registry methods are safe for concurrent use. Ticks for one user run on
that user's goroutine only and never overlap. Stop waits for a delivery that is
already in progress and guarantees that nothing is delivered for the stopped
monitor afterwards.

Monitors are not persisted. After a restart every user must start monitoring
again.
*/
package monitor
