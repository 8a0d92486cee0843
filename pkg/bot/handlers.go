package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mcwatch/pkg/models"
	"mcwatch/pkg/monitor"
	"mcwatch/pkg/server"
	"mcwatch/pkg/tracker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the bot needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Service is what the handlers call for every user action.
type Service interface {
	OnStart(ctx context.Context, userID int64)
	CheckStatus(ctx context.Context, userID int64) (tracker.CheckResult, error)
	ToggleMonitor(ctx context.Context, userID int64, on bool) error
	ChangeConfig(ctx context.Context, userID int64, field tracker.Field, value string) (bool, error)
	SaveConfig(ctx context.Context, userID int64, serverAddress, playerName string) error
	Reset(ctx context.Context, userID int64) error
	Settings(ctx context.Context, userID int64) (tracker.SettingsView, error)
	ResetDatabase(ctx context.Context) error
}

// Notifier delivers monitor notifications as chat messages. Users talk to the
// bot in private chats, so the user ID doubles as the chat ID.
type Notifier struct {
	api Sender
}

func NewNotifier(api Sender) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Send(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ReplyMarkup = mainKeyboard()
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", userID, err)
	}
	return nil
}

type Options struct {
	// Decides who may run /reset_db. Nil allows nobody.
	IsAdmin func(userID int64) bool
	// Shown to the user when monitoring starts
	CheckInterval time.Duration
}

type Handlers struct {
	api      Sender
	svc      Service
	opts     Options
	logger   *slog.Logger
	sessions *sessions
	wg       sync.WaitGroup
}

func NewHandlers(api Sender, svc Service, opts Options, logger *slog.Logger) *Handlers {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = monitor.DefaultSettings().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		api:      api,
		svc:      svc,
		opts:     opts,
		logger:   logger,
		sessions: newSessions(),
	}
}

// Run long-polls for updates and handles each message in its own goroutine
// until ctx is cancelled. It returns once every in-flight handler is done.
func (h *Handlers) Run(ctx context.Context, api *tgbotapi.BotAPI, timeout int) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	updates := api.GetUpdatesChan(u)

	h.logger.Info("Listening for updates", "bot", api.Self.UserName)

	defer h.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			h.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer h.wg.Done()
				h.Handle(ctx, update)
			}(update)
		}
	}
}

// Handle processes one incoming message. Messages from the same user are
// handled one at a time.
func (h *Handlers) Handle(ctx context.Context, upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return
	}
	chatID := m.Chat.ID
	userID := chatID
	if m.From != nil {
		userID = m.From.ID
	}

	// Notifier addresses users by ID, which is only a valid chat in private
	// chats. Groups get a pointer to the private chat and nothing else.
	if !m.Chat.IsPrivate() {
		if _, err := h.api.Send(tgbotapi.NewMessage(chatID, msgPrivateOnly)); err != nil {
			h.logger.Error("Failed to send message", "chatID", chatID, "error", err)
		}
		return
	}

	sess := h.sessions.acquire(userID)
	defer h.sessions.release(userID, sess)

	h.logger.Debug("Message received",
		"userID", userID,
		"state", sess.state,
		"command", m.Command())

	if m.IsCommand() {
		// A command always leaves a half-finished input step.
		sess.state = stateIdle
		h.handleCommand(ctx, chatID, userID, sess, m.Command())
		return
	}

	text := strings.TrimSpace(m.Text)

	switch sess.state {
	case stateAwaitingResetConfirm:
		sess.state = stateIdle
		if text == btnConfirmReset {
			h.resetSettings(ctx, chatID, userID, sess)
		} else {
			h.reply(chatID, msgResetCanceled, mainKeyboard())
		}
		return

	case stateAwaitingServer, stateAwaitingPlayer:
		if text == btnBack {
			sess.state = stateIdle
			h.showSettings(ctx, chatID, userID, sess)
			return
		}
		if sess.state == stateAwaitingServer {
			h.changeServer(ctx, chatID, userID, sess, text)
		} else {
			h.changePlayer(ctx, chatID, userID, sess, text)
		}
		return
	}

	switch text {
	case btnCheck:
		h.checkStatus(ctx, chatID, userID)
	case btnMonitorOn:
		h.startMonitoring(ctx, chatID, userID)
	case btnMonitorOff:
		h.stopMonitoring(ctx, chatID, userID)
	case btnSettings:
		h.showSettings(ctx, chatID, userID, sess)
	case btnHelp:
		h.help(chatID, sess)
	case btnChangeServer:
		sess.state = stateAwaitingServer
		h.reply(chatID, msgAskServer, backKeyboard())
	case btnChangePlayer:
		sess.state = stateAwaitingPlayer
		h.reply(chatID, msgAskPlayer, backKeyboard())
	case btnResetConfig:
		h.askResetConfirm(chatID, sess)
	case btnBack:
		h.reply(chatID, msgMainMenu, mainKeyboard())
	default:
		h.reply(chatID, msgUseMenu, mainKeyboard())
	}
}

func (h *Handlers) handleCommand(ctx context.Context, chatID, userID int64, sess *session, command string) {
	switch command {
	case "start":
		h.svc.OnStart(ctx, userID)
		h.reply(chatID, msgWelcome, mainKeyboard())
	case "check":
		h.checkStatus(ctx, chatID, userID)
	case "monitor":
		h.startMonitoring(ctx, chatID, userID)
	case "stop_monitor":
		h.stopMonitoring(ctx, chatID, userID)
	case "settings":
		h.showSettings(ctx, chatID, userID, sess)
	case "help":
		h.help(chatID, sess)
	case "reset_settings":
		h.askResetConfirm(chatID, sess)
	case "reset_db":
		h.resetDatabase(ctx, chatID, userID)
	default:
		h.reply(chatID, msgUseMenu, mainKeyboard())
	}
}

func (h *Handlers) checkStatus(ctx context.Context, chatID, userID int64) {
	res, err := h.svc.CheckStatus(ctx, userID)
	switch {
	case errors.Is(err, monitor.ErrConfigMissing):
		h.reply(chatID, msgConfigMissing, mainKeyboard())
	case err != nil:
		h.reply(chatID, msgInternalError, mainKeyboard())
	case res.Status == models.StatusUnreachable:
		h.reply(chatID, msgCheckFailed, mainKeyboard())
	default:
		h.reply(chatID, monitor.TransitionMessage(res.ServerAddress, res.PlayerName, res.Status), mainKeyboard())
	}
}

func (h *Handlers) startMonitoring(ctx context.Context, chatID, userID int64) {
	err := h.svc.ToggleMonitor(ctx, userID, true)
	switch {
	case errors.Is(err, monitor.ErrAlreadyActive):
		h.reply(chatID, msgAlreadyActive, mainKeyboard())
	case errors.Is(err, monitor.ErrConfigMissing):
		h.reply(chatID, msgConfigMissing, mainKeyboard())
	case errors.Is(err, monitor.ErrUnreachable):
		h.reply(chatID, msgUnreachable, mainKeyboard())
	case err != nil:
		h.reply(chatID, msgInternalError, mainKeyboard())
	default:
		view, err := h.svc.Settings(ctx, userID)
		if err != nil {
			h.reply(chatID, msgInternalError, mainKeyboard())
			return
		}
		h.reply(chatID, monitorStartedText(view.Monitor.ServerAddress, view.Monitor.PlayerName, h.opts.CheckInterval), mainKeyboard())
	}
}

func (h *Handlers) stopMonitoring(ctx context.Context, chatID, userID int64) {
	if err := h.svc.ToggleMonitor(ctx, userID, false); err != nil {
		h.reply(chatID, msgNotActive, mainKeyboard())
		return
	}
	h.reply(chatID, msgMonitorStopped, mainKeyboard())
}

func (h *Handlers) showSettings(ctx context.Context, chatID, userID int64, sess *session) {
	view, err := h.svc.Settings(ctx, userID)
	if err != nil {
		h.reply(chatID, msgInternalError, mainKeyboard())
		return
	}
	h.reply(chatID, settingsText(view, sess), settingsKeyboard())
}

func (h *Handlers) changeServer(ctx context.Context, chatID, userID int64, sess *session, address string) {
	applied, err := h.svc.ChangeConfig(ctx, userID, tracker.FieldServer, address)
	if errors.Is(err, server.ErrInvalidAddressFormat) {
		h.reply(chatID, msgInvalidServer, backKeyboard())
		return
	}
	sess.state = stateIdle
	if err != nil {
		h.reply(chatID, msgInternalError, mainKeyboard())
		return
	}

	pending := false
	switch {
	case applied:
		sess.pendingServer = ""
	case sess.pendingPlayer != "":
		if err := h.svc.SaveConfig(ctx, userID, address, sess.pendingPlayer); err != nil {
			h.reply(chatID, msgInternalError, mainKeyboard())
			return
		}
		sess.clearPending()
	default:
		sess.pendingServer = address
		pending = true
	}
	h.reply(chatID, serverChangedText(address, pending), settingsKeyboard())
}

func (h *Handlers) changePlayer(ctx context.Context, chatID, userID int64, sess *session, name string) {
	applied, err := h.svc.ChangeConfig(ctx, userID, tracker.FieldPlayer, name)
	if errors.Is(err, server.ErrInvalidPlayerNameFormat) {
		h.reply(chatID, msgInvalidPlayer, backKeyboard())
		return
	}
	sess.state = stateIdle
	if err != nil {
		h.reply(chatID, msgInternalError, mainKeyboard())
		return
	}

	pending := false
	switch {
	case applied:
		sess.pendingPlayer = ""
	case sess.pendingServer != "":
		if err := h.svc.SaveConfig(ctx, userID, sess.pendingServer, name); err != nil {
			h.reply(chatID, msgInternalError, mainKeyboard())
			return
		}
		sess.clearPending()
	default:
		sess.pendingPlayer = name
		pending = true
	}
	h.reply(chatID, playerChangedText(name, pending), settingsKeyboard())
}

func (h *Handlers) askResetConfirm(chatID int64, sess *session) {
	sess.state = stateAwaitingResetConfirm
	h.reply(chatID, msgConfirmReset, confirmKeyboard())
}

func (h *Handlers) resetSettings(ctx context.Context, chatID, userID int64, sess *session) {
	if err := h.svc.Reset(ctx, userID); err != nil {
		h.reply(chatID, msgInternalError, mainKeyboard())
		return
	}
	sess.clearPending()
	h.reply(chatID, msgResetDone, mainKeyboard())
}

func (h *Handlers) resetDatabase(ctx context.Context, chatID, userID int64) {
	if h.opts.IsAdmin == nil || !h.opts.IsAdmin(userID) {
		h.logger.Warn("Unauthorized database reset attempt", "userID", userID)
		h.reply(chatID, msgAdminOnly, mainKeyboard())
		return
	}
	if err := h.svc.ResetDatabase(ctx); err != nil {
		h.reply(chatID, msgDatabaseError, mainKeyboard())
		return
	}
	h.logger.Info("Database reset by admin", "userID", userID)
	h.reply(chatID, msgDatabaseReset, mainKeyboard())
}

// help replaces the previous help message so the chat keeps only one.
func (h *Handlers) help(chatID int64, sess *session) {
	if sess.lastHelpMsg != 0 {
		if _, err := h.api.Request(tgbotapi.NewDeleteMessage(chatID, sess.lastHelpMsg)); err != nil {
			h.logger.Debug("Failed to delete previous help message", "chatID", chatID, "error", err)
		}
		sess.lastHelpMsg = 0
	}

	msg := tgbotapi.NewMessage(chatID, msgHelp)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainKeyboard()
	sent, err := h.api.Send(msg)
	if err != nil {
		h.logger.Error("Failed to send message", "chatID", chatID, "error", err)
		return
	}
	sess.lastHelpMsg = sent.MessageID
}

func (h *Handlers) reply(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Error("Failed to send message", "chatID", chatID, "error", err)
	}
}
