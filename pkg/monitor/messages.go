package monitor

import (
	"fmt"

	"mcwatch/pkg/models"
)

// TransitionMessage is the default notification text. It is also what the
// on-demand check shows, so both paths read the same.
func TransitionMessage(serverAddress, playerName string, status models.PlayerStatus) string {
	switch status {
	case models.StatusOnline:
		return fmt.Sprintf("🎮 %s is in the game now! (Server: %s)", playerName, serverAddress)
	case models.StatusOffline:
		return fmt.Sprintf("💤 %s is not in the game. (Server: %s)", playerName, serverAddress)
	default:
		return fmt.Sprintf("❌ Failed to check server %s", serverAddress)
	}
}
