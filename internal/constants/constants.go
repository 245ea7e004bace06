package constants

import "time"

const (
	MaxSamples       = 5000
	MaxPlayers       = 1_000_000
	LatestScanDepth  = 50
	SampleTTL        = 9 * time.Minute
	SeriesKeyTTL     = 60 * 24 * time.Hour
	LobbyCacheTTL    = 30 * time.Second
	SnapshotTTL      = 12 * time.Minute
	SnapshotMaxAge   = 12 * time.Minute
	DefaultSeriesDay = 7
	MaxSeriesDays    = 90
)

const (
	SeriesKeyPrefix = "players:series:"
	SnapshotKey     = "players:snapshot"
	LockKeyPrefix   = "lock:"
	RefreshJobName  = "refresh-players"
	RefreshLockTTL  = 60 * time.Second
)

const (
	DefaultConcurrency = 3
	MaxConcurrency     = 8
	BatchDeadline      = 22 * time.Second
	ItemTimeout        = 8 * time.Second
	DefaultPoll        = 10 * time.Minute
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	BackendPingTimeout = 2 * time.Second
)

const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	RecentRunsLimit   = 20
)

const (
	ShutdownTimeout = 5 * time.Second
)
