package bot

import (
	"fmt"
	"strings"
	"time"

	"mcwatch/pkg/models"
	"mcwatch/pkg/tracker"
)

// Button labels. Incoming text is matched against these exactly.
const (
	btnCheck        = "Check status"
	btnMonitorOn    = "Monitoring ON"
	btnMonitorOff   = "Monitoring OFF"
	btnSettings     = "Settings"
	btnHelp         = "Help"
	btnChangeServer = "Change server"
	btnChangePlayer = "Change player"
	btnResetConfig  = "Reset settings"
	btnBack         = "Back"
	btnConfirmReset = "Yes, reset"
	btnCancelReset  = "No, cancel"
)

const (
	msgWelcome = "Hi! I watch Minecraft servers and tell you when a player joins or leaves.\n" +
		"Set up the server and player name under Settings first."
	msgMainMenu = "Main menu:"
	msgUseMenu  = "Use the buttons to talk to the bot."

	msgPrivateOnly = "I only work in private chats. Message me directly to set up monitoring."

	msgConfigMissing  = "❌ Set up the server and player name under Settings first."
	msgCheckFailed    = "❌ Failed to check the status. Make sure the server address is right."
	msgAlreadyActive  = "⚠️ Monitoring is already running!"
	msgUnreachable    = "❌ Could not connect to the server. Check the address and try again."
	msgNotActive      = "ℹ️ Monitoring was not running"
	msgMonitorStopped = "✅ Monitoring stopped!"
	msgInternalError  = "❌ Something went wrong. Please try again later."

	msgAskServer     = "Enter the server address as HOST:PORT (for example, 123.45.67.89:25565):"
	msgAskPlayer     = "Enter the Minecraft player name (Latin letters and digits, 5 to 16 characters):"
	msgInvalidServer = "❌ Wrong format! Enter HOST:PORT (for example, 123.45.67.89:25565)"
	msgInvalidPlayer = "❌ The player name must be 5 to 16 Latin letters or digits"

	msgConfirmReset  = "⚠️ Are you sure you want to reset the server and player name?\nThis cannot be undone."
	msgResetDone     = "✅ Settings have been reset!"
	msgResetCanceled = "❌ Reset canceled"

	msgAdminOnly     = "⛔ This command is only available to administrators."
	msgDatabaseReset = "✅ The database has been reset!"
	msgDatabaseError = "❌ Failed to reset the database"

	msgHelp = "🛠 <b>Available commands:</b>\n\n" +
		"🔍 <b>" + btnCheck + "</b> - Is the player online right now\n" +
		"🔔 <b>" + btnMonitorOn + "</b> - Notify me when the status changes\n" +
		"🔕 <b>" + btnMonitorOff + "</b> - Stop the notifications\n" +
		"⚙️ <b>" + btnSettings + "</b> - Change the server or player name\n" +
		"🔄 <b>" + btnResetConfig + "</b> - Clear the current settings"
)

func serverChangedText(address string, pendingPlayer bool) string {
	if pendingPlayer {
		return fmt.Sprintf("✅ Server set to: %s\nNow set the player name to save your settings.", address)
	}
	return fmt.Sprintf("✅ Server changed to: %s", address)
}

func playerChangedText(name string, pendingServer bool) string {
	if pendingServer {
		return fmt.Sprintf("✅ Player name set to: %s\nNow set the server to save your settings.", name)
	}
	return fmt.Sprintf("✅ Player name changed to: %s", name)
}

func monitorStartedText(address, player string, interval time.Duration) string {
	return fmt.Sprintf("🔔 Monitoring started for %s on %s\n"+
		"The server is checked every %s and you get a message whenever the status changes.",
		player, address, interval)
}

// settingsText renders the stored settings. Values the user entered that are
// not stored yet are shown as pending.
func settingsText(view tracker.SettingsView, s *session) string {
	var b strings.Builder
	b.WriteString("⚙️ Settings:\nCurrent settings:\n")

	b.WriteString("Server: ")
	b.WriteString(settingValue(view.Config.ServerAddress, s.pendingServer))
	b.WriteString("\nPlayer: ")
	b.WriteString(settingValue(view.Config.PlayerName, s.pendingPlayer))

	if view.Monitoring {
		fmt.Fprintf(&b, "\n\n🔔 Monitoring %s on %s since %s (last status: %s)",
			view.Monitor.PlayerName,
			view.Monitor.ServerAddress,
			view.Monitor.StartedAt.Format("15:04:05"),
			statusLabel(view.Monitor.LastKnown))
	}
	return b.String()
}

func settingValue(stored *string, pending string) string {
	switch {
	case stored != nil:
		return *stored
	case pending != "":
		return pending + " (not saved yet)"
	default:
		return "not set"
	}
}

func statusLabel(status models.PlayerStatus) string {
	switch status {
	case models.StatusOnline:
		return "🎮 online"
	case models.StatusOffline:
		return "💤 offline"
	case models.StatusUnreachable:
		return "❌ unreachable"
	default:
		return "not checked yet"
	}
}
