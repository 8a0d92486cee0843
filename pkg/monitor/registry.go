package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mcwatch/pkg/models"

	"github.com/google/uuid"
)

var (
	ErrAlreadyActive = errors.New("monitoring is already active")
	ErrNotActive     = errors.New("monitoring is not active")
	ErrConfigMissing = errors.New("server address or player name is not configured")
	ErrUnreachable   = errors.New("server is unreachable")
	ErrClosed        = errors.New("monitor registry is shut down")
)

// Prober is the part of the status client the registry needs.
type Prober interface {
	Probe(ctx context.Context, address, player string) models.PlayerStatus
	Reachable(ctx context.Context, address string) bool
}

// Notifier delivers a message to a chat user.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// MessageFunc renders the notification for a status transition.
type MessageFunc func(serverAddress, playerName string, status models.PlayerStatus) string

type Settings struct {
	FirstDelay time.Duration
	Interval   time.Duration
	Message    MessageFunc
}

func DefaultSettings() Settings {
	return Settings{
		FirstDelay: 5 * time.Second,
		Interval:   30 * time.Second,
		Message:    TransitionMessage,
	}
}

// Registry owns every active monitor in the process. Nothing is persisted: a
// restart means every monitor is stopped.
type Registry struct {
	prober   Prober
	notifier Notifier
	settings Settings
	logger   *slog.Logger

	mu      sync.Mutex
	handles map[int64]*handle
	closed  bool
	wg      sync.WaitGroup
}

func NewRegistry(prober Prober, notifier Notifier, settings Settings, logger *slog.Logger) *Registry {
	defaults := DefaultSettings()
	if settings.FirstDelay < 0 {
		settings.FirstDelay = defaults.FirstDelay
	}
	if settings.Interval <= 0 {
		settings.Interval = defaults.Interval
	}
	if settings.Message == nil {
		settings.Message = defaults.Message
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		prober:   prober,
		notifier: notifier,
		settings: settings,
		logger:   logger,
		handles:  make(map[int64]*handle),
	}
}

// Start admits a monitor for userID after one synchronous reachability check
// and schedules its ticks. The user's slot is reserved during the check, so a
// concurrent Start for the same user gets ErrAlreadyActive.
func (r *Registry) Start(ctx context.Context, userID int64, serverAddress, playerName string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, ok := r.handles[userID]; ok {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	if serverAddress == "" || playerName == "" {
		r.mu.Unlock()
		return ErrConfigMissing
	}
	h := newHandle(userID, serverAddress, playerName)
	r.handles[userID] = h
	r.mu.Unlock()

	if !r.prober.Reachable(ctx, serverAddress) {
		r.release(h)
		r.logger.Info("Monitor rejected, server unreachable",
			"userID", userID,
			"serverAddress", serverAddress)
		return ErrUnreachable
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		delete(r.handles, userID)
		h.cancel()
		return ErrClosed
	}

	h.activate()
	r.wg.Add(1)
	go r.run(h)

	r.logger.Info("Monitor started",
		"userID", userID,
		"serverAddress", serverAddress,
		"playerName", playerName,
		"sessionID", h.sessionID)

	return nil
}

// Stop cancels the user's monitor. Once Stop returns no further notification
// is delivered for that monitor, even if a tick was in flight.
func (r *Registry) Stop(userID int64) error {
	r.mu.Lock()
	h, ok := r.handles[userID]
	if !ok || !h.isActive() {
		r.mu.Unlock()
		return ErrNotActive
	}
	delete(r.handles, userID)
	r.mu.Unlock()

	h.stop()

	r.logger.Info("Monitor stopped", "userID", userID, "sessionID", h.sessionID)
	return nil
}

// IsActive reports whether userID has a running monitor.
func (r *Registry) IsActive(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[userID]
	return ok && h.isActive()
}

// Lookup returns a snapshot of the user's running monitor.
func (r *Registry) Lookup(userID int64) (Info, bool) {
	r.mu.Lock()
	h, ok := r.handles[userID]
	r.mu.Unlock()
	if !ok || !h.isActive() {
		return Info{}, false
	}
	return h.info(), true
}

// ActiveCount returns the number of running monitors.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.handles {
		if h.isActive() {
			n++
		}
	}
	return n
}

// StopAll stops every monitor, refuses new ones and waits for all task
// goroutines to exit.
func (r *Registry) StopAll() {
	r.mu.Lock()
	r.closed = true
	var stopping []*handle
	for id, h := range r.handles {
		if h.isActive() {
			stopping = append(stopping, h)
			delete(r.handles, id)
		}
	}
	r.mu.Unlock()

	for _, h := range stopping {
		h.stop()
	}
	r.wg.Wait()

	r.logger.Info("All monitors stopped", "count", len(stopping))
}

// release drops a reservation that never became active.
func (r *Registry) release(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[h.userID] == h {
		delete(r.handles, h.userID)
	}
	h.cancel()
}

// Info is a read-only snapshot of a running monitor.
type Info struct {
	UserID        int64
	ServerAddress string
	PlayerName    string
	SessionID     uuid.UUID
	StartedAt     time.Time
	LastKnown     models.PlayerStatus
}

type handle struct {
	userID        int64
	serverAddress string
	playerName    string
	sessionID     uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	// active is false while the admission probe runs and after stop. It is
	// read under Registry.mu, so it must not take mu below.
	active atomic.Bool

	// mu serializes ticks and guards the fields below. A tick holds it while
	// delivering, which is what lets stop() wait out an in-flight delivery.
	mu        sync.Mutex
	stopped   bool
	startedAt time.Time
	lastKnown models.PlayerStatus
}

func newHandle(userID int64, serverAddress, playerName string) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{
		userID:        userID,
		serverAddress: serverAddress,
		playerName:    playerName,
		sessionID:     uuid.New(),
		ctx:           ctx,
		cancel:        cancel,
		lastKnown:     models.StatusUnknown,
	}
}

func (h *handle) activate() {
	h.mu.Lock()
	h.startedAt = time.Now()
	h.mu.Unlock()
	h.active.Store(true)
}

func (h *handle) isActive() bool {
	return h.active.Load()
}

func (h *handle) stop() {
	h.active.Store(false)
	h.cancel()
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

func (h *handle) info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Info{
		UserID:        h.userID,
		ServerAddress: h.serverAddress,
		PlayerName:    h.playerName,
		SessionID:     h.sessionID,
		StartedAt:     h.startedAt,
		LastKnown:     h.lastKnown,
	}
}
