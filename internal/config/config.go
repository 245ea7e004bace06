package config

import (
	"fmt"
	"livegame-tracker/internal/constants"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	ServerPort    string
	LogLevel      string
	DBPath        string
	RedisURL      string
	CronSecret    string
	LobbyURL      string
	LobbyAPIKey   string
	TargetBaseURL string
	RenderURL     string
	DefaultEngine string
	RegistryPath  string
	TimeZone      *time.Location
	PollInterval  time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DBPath:        getEnv("DB_PATH", "tracker.db"),
		RedisURL:      getEnv("REDIS_URL", ""),
		CronSecret:    getEnv("CRON_SECRET", ""),
		LobbyURL:      getEnv("LOBBY_URL", "https://api.casinoscores.com/svc-evolution-game-events/api/lobby"),
		LobbyAPIKey:   getEnv("LOBBY_API_KEY", ""),
		TargetBaseURL: strings.TrimRight(getEnv("TARGET_BASE_URL", "https://casinoscores.com"), "/"),
		RenderURL:     getEnv("RENDER_URL", ""),
		DefaultEngine: getEnv("DEFAULT_ENGINE", "static"),
		RegistryPath:  getEnv("REGISTRY_PATH", ""),
	}

	tzName := getEnv("TIME_ZONE", "Europe/Berlin")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", tzName, err)
	}
	cfg.TimeZone = loc

	poll, err := time.ParseDuration(getEnv("POLL_INTERVAL", constants.DefaultPoll.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	cfg.PollInterval = poll

	if cfg.CronSecret == "" {
		logger.Warn().Msg("CRON_SECRET is not set, the refresh trigger will refuse every request")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("redis", cfg.RedisURL != "").
		Str("default_engine", cfg.DefaultEngine).
		Str("time_zone", cfg.TimeZone.String()).
		Dur("poll_interval", cfg.PollInterval).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
