// File: main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mcwatch/pkg/bot"
	"mcwatch/pkg/config"
	"mcwatch/pkg/connectivity"
	"mcwatch/pkg/database"
	"mcwatch/pkg/models"
	"mcwatch/pkg/monitor"
	"mcwatch/pkg/server"
	"mcwatch/pkg/tester"
	"mcwatch/pkg/tracker"
)

var (
	debugFlag  bool
	configFile string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mcwatch",
	Short: "A Telegram bot that watches Minecraft servers for a player",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		if cfg.Telegram.Token == "" {
			logger.Error("telegram.token is not set (config file or MCWATCH_TELEGRAM_TOKEN)")
			os.Exit(1)
		}

		db, err := initDB(cfg)
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		prober, err := newProber(cfg)
		if err != nil {
			logger.Error("Error creating status client", "error", err)
			os.Exit(1)
		}

		if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
			logger.Warn("Failed to set Telegram logger", "error", err)
		}
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Error("Error connecting to Telegram", "error", err)
			os.Exit(1)
		}
		api.Debug = cfg.Telegram.Debug
		logger.Info("Authorized on Telegram", "bot", api.Self.UserName)

		registry := monitor.NewRegistry(prober, bot.NewNotifier(api), monitor.Settings{
			FirstDelay: cfg.Monitor.FirstDelay,
			Interval:   cfg.Monitor.Interval,
		}, logger)
		svc := tracker.NewTrackerService(db, registry, prober, logger)
		handlers := bot.NewHandlers(api, svc, bot.Options{
			IsAdmin:       cfg.Telegram.IsAdmin,
			CheckInterval: cfg.Monitor.Interval,
		}, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handlers.Run(ctx, api, cfg.Telegram.Timeout)

		logger.Info("Shutting down", "activeMonitors", registry.ActiveCount())
		registry.StopAll()
	},
}

var probeCmd = &cobra.Command{
	Use:     "probe [address] [player]",
	Short:   "Check once whether a player is on a server",
	Example: "probe mc.example.com:25565 Steve",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		address, player := args[0], args[1]

		if err := server.ValidateAddress(address); err != nil {
			logger.Error("Invalid server address", "serverAddress", address, "error", err)
			os.Exit(1)
		}
		if err := server.ValidatePlayerName(player); err != nil {
			logger.Error("Invalid player name", "playerName", player, "error", err)
			os.Exit(1)
		}

		client, err := newProber(cfg)
		if err != nil {
			logger.Error("Error creating status client", "error", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		latency, err := client.Ping(ctx, address)
		if err != nil {
			logger.Debug("Ping failed", "error", err)
			fmt.Println(monitor.TransitionMessage(address, player, models.StatusUnreachable))
			os.Exit(2)
		}
		status, err := client.Status(ctx, address)
		if err != nil {
			logger.Debug("Status request failed", "error", err)
			fmt.Println(monitor.TransitionMessage(address, player, models.StatusUnreachable))
			os.Exit(2)
		}

		playerStatus := models.StatusOffline
		if status.HasPlayer(player) {
			playerStatus = models.StatusOnline
		}

		fmt.Printf("Server:  %s (%s, protocol %d)\n", address, status.Version.Name, status.Version.Protocol)
		fmt.Printf("Players: %d/%d\n", status.Players.Online, status.Players.Max)
		fmt.Printf("Latency: %s\n", latency.Round(time.Millisecond))
		fmt.Println(monitor.TransitionMessage(address, player, playerStatus))
	},
}

var checkAllCmd = &cobra.Command{
	Use:   "check-all",
	Short: "Check every configured user's server and player once",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		db, err := initDB(cfg)
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		client, err := newProber(cfg)
		if err != nil {
			logger.Error("Error creating status client", "error", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := tester.CheckAll(ctx, db, client, cfg.CheckAll.Workers)
		if err != nil {
			logger.Error("Error checking users", "error", err)
			os.Exit(1)
		}

		for _, res := range results {
			if res.Err != nil {
				logger.Info("Result",
					"userID", res.UserID,
					"serverAddress", res.Address,
					"playerName", res.Player,
					"status", res.Status,
					"error", res.Err)
				continue
			}
			logger.Info("Result",
				"userID", res.UserID,
				"serverAddress", res.Address,
				"playerName", res.Player,
				"status", res.Status,
				"playersOnline", res.PlayersOnline)
		}
	},
}

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Drop all stored user settings",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()

		db, err := initDB(cfg)
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.ResetSchema(context.Background()); err != nil {
			logger.Error("Error resetting database", "error", err)
			os.Exit(1)
		}
		logger.Info("Database reset successfully")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./config.yaml, $HOME/.mcwatch/config.yaml or /etc/mcwatch/config.yaml)")

	probeCmd.Flags().String("transport", "", "Outline transport config for the probe, e.g. socks5://localhost:1080")
	viper.BindPFlag("probe.transport", probeCmd.Flags().Lookup("transport"))
	checkAllCmd.Flags().Int("workers", 0, "Number of concurrent checks (default from checkall.workers)")
	viper.BindPFlag("checkall.workers", checkAllCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(checkAllCmd)
	rootCmd.AddCommand(resetDBCmd)
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.mcwatch")
		viper.AddConfigPath("/etc/mcwatch/")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			fmt.Printf("Error reading config file: %v\n", err)
			os.Exit(1)
		}
		// No file: defaults and MCWATCH_* variables only.
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Debug("Configuration loaded",
		"file", viper.ConfigFileUsed(),
		"databaseDriver", cfg.Database.Driver,
		"probeTransport", cfg.Probe.Transport != "")
	return cfg
}

func initDB(cfg *config.Config) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func newProber(cfg *config.Config) (*connectivity.Client, error) {
	return connectivity.NewClient(connectivity.Options{
		Timeout:         cfg.Probe.Timeout,
		Transport:       cfg.Probe.Transport,
		ProtocolVersion: cfg.Probe.ProtocolVersion,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
