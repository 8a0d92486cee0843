package bot

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"mcwatch/pkg/config"
	"mcwatch/pkg/database"
	"mcwatch/pkg/models"
	"mcwatch/pkg/monitor"
	"mcwatch/pkg/tracker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	deleted []int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
		f.deleted = append(f.deleted, d.MessageID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeProber struct {
	status    models.PlayerStatus
	reachable bool
}

func (p *fakeProber) Probe(ctx context.Context, address, player string) models.PlayerStatus {
	return p.status
}

func (p *fakeProber) Reachable(ctx context.Context, address string) bool { return p.reachable }

const (
	testUser  int64 = 1001
	testAdmin int64 = 42
)

type testBot struct {
	h      *Handlers
	sender *fakeSender
	svc    *tracker.TrackerService
}

func newTestBot(t *testing.T, p *fakeProber) *testBot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(config.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	sender := &fakeSender{}
	settings := monitor.Settings{FirstDelay: time.Hour, Interval: time.Hour}
	registry := monitor.NewRegistry(p, NewNotifier(sender), settings, logger)
	t.Cleanup(registry.StopAll)

	svc := tracker.NewTrackerService(db, registry, p, logger)
	cfg := config.TelegramConfig{Admins: []int64{testAdmin}}
	h := NewHandlers(sender, svc, Options{IsAdmin: cfg.IsAdmin, CheckInterval: 30 * time.Second}, logger)

	return &testBot{h: h, sender: sender, svc: svc}
}

// say delivers text from userID in their private chat and returns the bot's
// reply.
func (b *testBot) say(t *testing.T, userID int64, text string) tgbotapi.MessageConfig {
	t.Helper()
	return b.sayIn(t, &tgbotapi.Chat{ID: userID, Type: "private"}, userID, text)
}

func (b *testBot) sayIn(t *testing.T, chat *tgbotapi.Chat, userID int64, text string) tgbotapi.MessageConfig {
	t.Helper()
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      chat,
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		length := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			length = i
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	}
	b.h.Handle(context.Background(), tgbotapi.Update{Message: msg})
	return b.sender.last(t)
}

func firstButton(t *testing.T, m tgbotapi.MessageConfig) string {
	t.Helper()
	kb, ok := m.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	if !ok {
		t.Fatalf("ReplyMarkup = %T, want ReplyKeyboardMarkup", m.ReplyMarkup)
	}
	return kb.Keyboard[0][0].Text
}

func (b *testBot) saveConfig(t *testing.T, userID int64) {
	t.Helper()
	if err := b.svc.SaveConfig(context.Background(), userID, "mc.example.com:25565", "Steve"); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
}

func TestFirstTimeSetup(t *testing.T) {
	b := newTestBot(t, &fakeProber{})

	reply := b.say(t, testUser, btnSettings)
	if !strings.Contains(reply.Text, "Server: not set") || firstButton(t, reply) != btnChangeServer {
		t.Errorf("settings reply = %q", reply.Text)
	}

	if reply := b.say(t, testUser, btnChangeServer); reply.Text != msgAskServer || firstButton(t, reply) != btnBack {
		t.Errorf("change server reply = %q", reply.Text)
	}

	if reply := b.say(t, testUser, "mc.example.com"); reply.Text != msgInvalidServer {
		t.Errorf("invalid server reply = %q, want %q", reply.Text, msgInvalidServer)
	}
	if got := b.h.sessions.get(testUser).state; got != stateAwaitingServer {
		t.Errorf("state after invalid input = %v, want %v", got, stateAwaitingServer)
	}

	if reply := b.say(t, testUser, " mc.example.com:25565 "); reply.Text != serverChangedText("mc.example.com:25565", true) {
		t.Errorf("server reply = %q", reply.Text)
	}
	if reply := b.say(t, testUser, btnSettings); !strings.Contains(reply.Text, "mc.example.com:25565 (not saved yet)") {
		t.Errorf("settings with pending server = %q", reply.Text)
	}

	b.say(t, testUser, btnChangePlayer)
	if reply := b.say(t, testUser, "Bob"); reply.Text != msgInvalidPlayer {
		t.Errorf("invalid player reply = %q, want %q", reply.Text, msgInvalidPlayer)
	}
	if reply := b.say(t, testUser, "Steve"); reply.Text != playerChangedText("Steve", false) {
		t.Errorf("player reply = %q", reply.Text)
	}

	view, err := b.svc.Settings(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if view.Config.Server() != "mc.example.com:25565" || view.Config.Player() != "Steve" {
		t.Errorf("stored config = %s / %s", view.Config.Server(), view.Config.Player())
	}
	if sess := b.h.sessions.get(testUser); sess.pendingServer != "" || sess.pendingPlayer != "" || sess.state != stateIdle {
		t.Errorf("session after setup = %+v", sess)
	}

	// Once stored, single changes apply directly.
	b.say(t, testUser, btnChangePlayer)
	if reply := b.say(t, testUser, "Alex_"); reply.Text != playerChangedText("Alex_", false) {
		t.Errorf("player change reply = %q", reply.Text)
	}
}

func TestCheckStatus(t *testing.T) {
	p := &fakeProber{status: models.StatusOnline, reachable: true}
	b := newTestBot(t, p)

	if reply := b.say(t, testUser, "/check"); reply.Text != msgConfigMissing {
		t.Errorf("/check without settings = %q, want %q", reply.Text, msgConfigMissing)
	}

	b.saveConfig(t, testUser)
	want := monitor.TransitionMessage("mc.example.com:25565", "Steve", models.StatusOnline)
	if reply := b.say(t, testUser, btnCheck); reply.Text != want {
		t.Errorf("check reply = %q, want %q", reply.Text, want)
	}

	p.status = models.StatusUnreachable
	if reply := b.say(t, testUser, "/check"); reply.Text != msgCheckFailed {
		t.Errorf("check unreachable reply = %q, want %q", reply.Text, msgCheckFailed)
	}
}

func TestMonitoring(t *testing.T) {
	p := &fakeProber{reachable: true}
	b := newTestBot(t, p)

	if reply := b.say(t, testUser, "/monitor"); reply.Text != msgConfigMissing {
		t.Errorf("/monitor without settings = %q", reply.Text)
	}

	b.saveConfig(t, testUser)
	want := monitorStartedText("mc.example.com:25565", "Steve", 30*time.Second)
	if reply := b.say(t, testUser, btnMonitorOn); reply.Text != want {
		t.Errorf("monitor on reply = %q, want %q", reply.Text, want)
	}
	if reply := b.say(t, testUser, "/monitor"); reply.Text != msgAlreadyActive {
		t.Errorf("second /monitor = %q, want %q", reply.Text, msgAlreadyActive)
	}
	if reply := b.say(t, testUser, btnSettings); !strings.Contains(reply.Text, "🔔 Monitoring Steve") {
		t.Errorf("settings while monitoring = %q", reply.Text)
	}
	if reply := b.say(t, testUser, btnMonitorOff); reply.Text != msgMonitorStopped {
		t.Errorf("monitor off reply = %q", reply.Text)
	}
	if reply := b.say(t, testUser, "/stop_monitor"); reply.Text != msgNotActive {
		t.Errorf("second /stop_monitor = %q, want %q", reply.Text, msgNotActive)
	}

	p.reachable = false
	if reply := b.say(t, testUser, btnMonitorOn); reply.Text != msgUnreachable {
		t.Errorf("monitor on unreachable = %q, want %q", reply.Text, msgUnreachable)
	}
}

func TestStartStopsMonitor(t *testing.T) {
	b := newTestBot(t, &fakeProber{reachable: true})
	b.saveConfig(t, testUser)
	b.say(t, testUser, "/monitor")

	if reply := b.say(t, testUser, "/start"); reply.Text != msgWelcome {
		t.Errorf("/start reply = %q", reply.Text)
	}
	if reply := b.say(t, testUser, "/stop_monitor"); reply.Text != msgNotActive {
		t.Errorf("/stop_monitor after /start = %q, want %q", reply.Text, msgNotActive)
	}
}

func TestResetSettings(t *testing.T) {
	b := newTestBot(t, &fakeProber{})
	b.saveConfig(t, testUser)

	if reply := b.say(t, testUser, "/reset_settings"); reply.Text != msgConfirmReset || firstButton(t, reply) != btnConfirmReset {
		t.Errorf("/reset_settings reply = %q", reply.Text)
	}
	if reply := b.say(t, testUser, btnCancelReset); reply.Text != msgResetCanceled {
		t.Errorf("cancel reply = %q", reply.Text)
	}

	b.say(t, testUser, btnResetConfig)
	if reply := b.say(t, testUser, btnConfirmReset); reply.Text != msgResetDone {
		t.Errorf("confirm reply = %q", reply.Text)
	}
	if reply := b.say(t, testUser, btnSettings); !strings.Contains(reply.Text, "Server: not set\nPlayer: not set") {
		t.Errorf("settings after reset = %q", reply.Text)
	}
}

func TestResetDatabase(t *testing.T) {
	b := newTestBot(t, &fakeProber{})
	b.saveConfig(t, testUser)

	if reply := b.say(t, testUser, "/reset_db"); reply.Text != msgAdminOnly {
		t.Errorf("/reset_db by user = %q, want %q", reply.Text, msgAdminOnly)
	}
	if reply := b.say(t, testUser, btnSettings); strings.Contains(reply.Text, "not set") {
		t.Errorf("settings wiped by non-admin: %q", reply.Text)
	}

	if reply := b.say(t, testAdmin, "/reset_db"); reply.Text != msgDatabaseReset {
		t.Errorf("/reset_db by admin = %q, want %q", reply.Text, msgDatabaseReset)
	}
	if reply := b.say(t, testUser, btnSettings); !strings.Contains(reply.Text, "Server: not set") {
		t.Errorf("settings after database reset = %q", reply.Text)
	}
}

func TestBackAndCommandsLeaveInput(t *testing.T) {
	b := newTestBot(t, &fakeProber{})

	b.say(t, testUser, btnChangeServer)
	if reply := b.say(t, testUser, btnBack); firstButton(t, reply) != btnChangeServer {
		t.Errorf("back from input did not show settings: %q", reply.Text)
	}
	if reply := b.say(t, testUser, btnBack); reply.Text != msgMainMenu || firstButton(t, reply) != btnCheck {
		t.Errorf("back from settings = %q", reply.Text)
	}

	b.say(t, testUser, btnChangePlayer)
	b.say(t, testUser, "/help")
	if got := b.h.sessions.get(testUser).state; got != stateIdle {
		t.Errorf("state after command = %v, want %v", got, stateIdle)
	}

	if reply := b.say(t, testUser, "hello?"); reply.Text != msgUseMenu {
		t.Errorf("free text reply = %q, want %q", reply.Text, msgUseMenu)
	}
	if reply := b.say(t, testUser, "/unknown"); reply.Text != msgUseMenu {
		t.Errorf("unknown command reply = %q, want %q", reply.Text, msgUseMenu)
	}
}

func TestHelpReplacesPrevious(t *testing.T) {
	b := newTestBot(t, &fakeProber{})

	first := b.say(t, testUser, "/help")
	if first.ParseMode != tgbotapi.ModeHTML || first.Text != msgHelp {
		t.Errorf("help message = %+v", first)
	}
	firstID := b.h.sessions.get(testUser).lastHelpMsg

	b.say(t, testUser, btnHelp)
	if len(b.sender.deleted) != 1 || b.sender.deleted[0] != firstID {
		t.Errorf("deleted = %v, want [%d]", b.sender.deleted, firstID)
	}
}

func TestNotifierSend(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender)

	if err := n.Send(context.Background(), testUser, "ping"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	m := sender.last(t)
	if m.ChatID != testUser || m.Text != "ping" || firstButton(t, m) != btnCheck {
		t.Errorf("Send() sent %+v", m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, testUser, "late"); err == nil {
		t.Error("Send() with cancelled context succeeded")
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(sender.sent))
	}
}

func TestGroupChatIsRefused(t *testing.T) {
	b := newTestBot(t, &fakeProber{reachable: true})
	b.saveConfig(t, testUser)
	group := &tgbotapi.Chat{ID: -100123, Type: "supergroup"}

	tests := []string{"/monitor", btnMonitorOn, btnChangeServer, "/reset_settings"}
	for _, text := range tests {
		reply := b.sayIn(t, group, testUser, text)
		if reply.ChatID != group.ID || reply.Text != msgPrivateOnly {
			t.Errorf("%q in group got = %q to %d, want %q to %d", text, reply.Text, reply.ChatID, msgPrivateOnly, group.ID)
		}
		if reply.ReplyMarkup != nil {
			t.Errorf("%q in group got keyboard %T, want none", text, reply.ReplyMarkup)
		}
	}

	if view, err := b.svc.Settings(context.Background(), testUser); err != nil || view.Monitoring {
		t.Errorf("Settings() after group commands = %+v, %v, want no monitor", view, err)
	}
	if n := b.h.sessions.len(); n != 0 {
		t.Errorf("sessions after group commands = %d, want 0", n)
	}
}

func TestIdleSessionsArePruned(t *testing.T) {
	b := newTestBot(t, &fakeProber{})

	b.say(t, testUser, btnSettings)
	b.say(t, testUser+1, "/check")
	if n := b.h.sessions.len(); n != 0 {
		t.Errorf("sessions after idle messages = %d, want 0", n)
	}

	b.say(t, testUser, btnChangeServer)
	if n := b.h.sessions.len(); n != 1 {
		t.Errorf("sessions while awaiting input = %d, want 1", n)
	}
	b.say(t, testUser, "mc.example.com:25565")
	if n := b.h.sessions.len(); n != 1 {
		t.Errorf("sessions with a pending value = %d, want 1", n)
	}

	b.say(t, testUser, btnChangePlayer)
	b.say(t, testUser, "Steve")
	if n := b.h.sessions.len(); n != 0 {
		t.Errorf("sessions after setup completed = %d, want 0", n)
	}
}

func TestConcurrentMessagesShareSession(t *testing.T) {
	b := newTestBot(t, &fakeProber{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.h.Handle(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: 1,
				From:      &tgbotapi.User{ID: testUser},
				Chat:      &tgbotapi.Chat{ID: testUser, Type: "private"},
				Text:      btnBack,
			}})
		}()
	}
	wg.Wait()

	if n := b.h.sessions.len(); n != 0 {
		t.Errorf("sessions after concurrent idle messages = %d, want 0", n)
	}
	b.sender.mu.Lock()
	defer b.sender.mu.Unlock()
	if len(b.sender.sent) != 20 {
		t.Errorf("sent %d replies, want 20", len(b.sender.sent))
	}
}
