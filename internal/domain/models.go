package domain

import (
	"time"
)

// LobbyKeyKind tags how an identifier is resolved in the provider's batched
// lobby payload.
type LobbyKeyKind int

const (
	LobbyNone LobbyKeyKind = iota
	LobbyDefault
	LobbyVariant
)

type LobbyKey struct {
	Kind    LobbyKeyKind
	Table   string
	Variant string // only set for LobbyVariant
}

func NoLobbyKey() LobbyKey { return LobbyKey{Kind: LobbyNone} }

func DefaultLobbyKey(table string) LobbyKey {
	return LobbyKey{Kind: LobbyDefault, Table: table}
}

func VariantLobbyKey(table, variant string) LobbyKey {
	return LobbyKey{Kind: LobbyVariant, Table: table, Variant: variant}
}

func (k LobbyKey) Covered() bool { return k.Kind != LobbyNone && k.Table != "" }

// Target describes where the directed fetch finds the counter element.
type Target struct {
	Path            string // relative to the target base url
	CounterSelector string
	VariantSelector string // ui selection step, empty when the page shows the value directly
	VariantParam    string
}

type Identifier struct {
	ID      string // "crazy-time" or "crazy-time:a"
	Slug    string
	Variant string
	Name    string
	Lobby   LobbyKey
	Target  Target
}

type Sample struct {
	Timestamp int64 `json:"ts" msgpack:"ts"`
	Value     int   `json:"value" msgpack:"value"`
}

func (s Sample) Time() time.Time { return time.UnixMilli(s.Timestamp) }

type DailyAverage struct {
	Date string  `json:"date"`
	Avg  float64 `json:"avg"`
}

type FetchSource string

const (
	SourceLobby    FetchSource = "lobby"
	SourceDirected FetchSource = "directed"
)

type FetchResult struct {
	ID         string      `json:"id"`
	OK         bool        `json:"ok"`
	Players    *int        `json:"players"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"durationMs"`
	Source     FetchSource `json:"source"`
	FetchedAt  int64       `json:"fetchedAt"`
}

type SnapshotItem struct {
	Players   *int    `json:"players"`
	FetchedAt *int64  `json:"fetchedAt"`
	Error     *string `json:"error"`
}

type Rollup struct {
	TrackedTotal int `json:"trackedTotal"`
	TrackedCount int `json:"trackedCount"`
}

type SnapshotMeta struct {
	RunID  string `json:"runId,omitempty"`
	Engine string `json:"engine,omitempty"`
	Source string `json:"source,omitempty"`
}

type Snapshot struct {
	UpdatedAt int64                   `json:"updatedAt"`
	Items     map[string]SnapshotItem `json:"items"`
	Rollup    Rollup                  `json:"rollup"`
	Meta      SnapshotMeta            `json:"meta"`
}

type IngestRun struct {
	ID          string
	Trigger     string
	Engine      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Checked     int
	Stale       int
	LobbyHits   int
	Attempted   int
	Succeeded   int
	Skipped     int
	OK          bool
	LockSkipped bool
}
