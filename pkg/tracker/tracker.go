package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mcwatch/pkg/models"
	"mcwatch/pkg/monitor"
	"mcwatch/pkg/server"
)

// Store is the user settings persistence the service needs.
type Store interface {
	GetUserConfig(ctx context.Context, userID int64) (models.UserConfig, error)
	SetUserConfig(ctx context.Context, userID int64, serverAddress, playerName *string) error
	ResetSchema(ctx context.Context) error
}

// ErrStorage wraps every persistence failure so the transport can answer with
// a generic error without inspecting driver errors.
var ErrStorage = errors.New("storage failure")

type Field int

const (
	FieldServer Field = iota
	FieldPlayer
)

func (f Field) String() string {
	if f == FieldServer {
		return "server"
	}
	return "player"
}

type CheckResult struct {
	ServerAddress string
	PlayerName    string
	Status        models.PlayerStatus
	CheckedAt     time.Time
}

// SettingsView is what the settings screen shows.
type SettingsView struct {
	Config     models.UserConfig
	Monitoring bool
	Monitor    monitor.Info
}

// TrackerService is the entry point the chat transport calls into. Every
// method maps to one user action.
type TrackerService struct {
	store    Store
	registry *monitor.Registry
	prober   monitor.Prober
	logger   *slog.Logger
}

func NewTrackerService(store Store, registry *monitor.Registry, prober monitor.Prober, logger *slog.Logger) *TrackerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackerService{
		store:    store,
		registry: registry,
		prober:   prober,
		logger:   logger,
	}
}

// OnStart handles a fresh /start: any monitor left over from an earlier
// session is stopped.
func (s *TrackerService) OnStart(ctx context.Context, userID int64) {
	if err := s.registry.Stop(userID); err == nil {
		s.logger.Info("Stopped previous monitor on start", "userID", userID)
	}
}

// CheckStatus probes the user's configured server once.
func (s *TrackerService) CheckStatus(ctx context.Context, userID int64) (CheckResult, error) {
	cfg, err := s.loadConfig(ctx, userID)
	if err != nil {
		return CheckResult{}, err
	}
	if !cfg.Complete() {
		return CheckResult{}, monitor.ErrConfigMissing
	}

	status := s.prober.Probe(ctx, cfg.Server(), cfg.Player())

	s.logger.Debug("On-demand check",
		"userID", userID,
		"serverAddress", cfg.Server(),
		"playerName", cfg.Player(),
		"status", status)

	return CheckResult{
		ServerAddress: cfg.Server(),
		PlayerName:    cfg.Player(),
		Status:        status,
		CheckedAt:     time.Now(),
	}, nil
}

// ToggleMonitor starts or stops monitoring with the user's stored settings.
func (s *TrackerService) ToggleMonitor(ctx context.Context, userID int64, on bool) error {
	if !on {
		return s.registry.Stop(userID)
	}

	cfg, err := s.loadConfig(ctx, userID)
	if err != nil {
		return err
	}
	return s.registry.Start(ctx, userID, cfg.Server(), cfg.Player())
}

// ChangeConfig validates and stores a single setting. applied is false when
// the store ignored the write, which happens for users that have no stored
// settings yet: a first write must carry both values (see SaveConfig).
func (s *TrackerService) ChangeConfig(ctx context.Context, userID int64, field Field, value string) (applied bool, err error) {
	value = strings.TrimSpace(value)

	var serverAddress, playerName *string
	switch field {
	case FieldServer:
		if err := server.ValidateAddress(value); err != nil {
			return false, err
		}
		serverAddress = &value
	case FieldPlayer:
		if err := server.ValidatePlayerName(value); err != nil {
			return false, err
		}
		playerName = &value
	default:
		return false, fmt.Errorf("unknown config field %d", field)
	}

	if err := s.store.SetUserConfig(ctx, userID, serverAddress, playerName); err != nil {
		s.logger.Error("Failed to store setting", "userID", userID, "field", field, "error", err)
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	cfg, err := s.loadConfig(ctx, userID)
	if err != nil {
		return false, err
	}

	switch field {
	case FieldServer:
		applied = cfg.Server() == value
	case FieldPlayer:
		applied = cfg.Player() == value
	}

	s.logger.Info("Setting changed",
		"userID", userID,
		"field", field,
		"applied", applied)

	return applied, nil
}

// SaveConfig validates and stores both settings at once, creating the user's
// record if needed.
func (s *TrackerService) SaveConfig(ctx context.Context, userID int64, serverAddress, playerName string) error {
	serverAddress = strings.TrimSpace(serverAddress)
	playerName = strings.TrimSpace(playerName)

	if err := server.ValidateAddress(serverAddress); err != nil {
		return err
	}
	if err := server.ValidatePlayerName(playerName); err != nil {
		return err
	}

	if err := s.store.SetUserConfig(ctx, userID, &serverAddress, &playerName); err != nil {
		s.logger.Error("Failed to store settings", "userID", userID, "error", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Info("Settings saved", "userID", userID)
	return nil
}

// Reset clears both settings. A running monitor keeps the values it was
// started with.
func (s *TrackerService) Reset(ctx context.Context, userID int64) error {
	if err := s.store.SetUserConfig(ctx, userID, nil, nil); err != nil {
		s.logger.Error("Failed to reset settings", "userID", userID, "error", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.logger.Info("Settings reset", "userID", userID)
	return nil
}

// Settings returns the stored settings and the monitor state for display.
func (s *TrackerService) Settings(ctx context.Context, userID int64) (SettingsView, error) {
	cfg, err := s.loadConfig(ctx, userID)
	if err != nil {
		return SettingsView{}, err
	}
	info, active := s.registry.Lookup(userID)
	return SettingsView{Config: cfg, Monitoring: active, Monitor: info}, nil
}

// ResetDatabase drops every user's settings.
func (s *TrackerService) ResetDatabase(ctx context.Context) error {
	if err := s.store.ResetSchema(ctx); err != nil {
		s.logger.Error("Failed to reset database", "error", err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.logger.Warn("Database reset")
	return nil
}

func (s *TrackerService) loadConfig(ctx context.Context, userID int64) (models.UserConfig, error) {
	cfg, err := s.store.GetUserConfig(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load settings", "userID", userID, "error", err)
		return models.UserConfig{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return cfg, nil
}
