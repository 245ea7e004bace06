package registry

import (
	"fmt"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/domain"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const defaultCounterSelector = "[data-testid=player-count]"

// Registry is immutable after construction.
type Registry struct {
	order []string
	byID  map[string]domain.Identifier
}

func New(ids []domain.Identifier) (*Registry, error) {
	r := &Registry{byID: make(map[string]domain.Identifier, len(ids))}
	for _, id := range ids {
		if id.ID == "" {
			return nil, fmt.Errorf("identifier with slug %q has empty id", id.Slug)
		}
		if _, dup := r.byID[id.ID]; dup {
			return nil, fmt.Errorf("duplicate identifier %q", id.ID)
		}
		if id.Target.CounterSelector == "" {
			id.Target.CounterSelector = defaultCounterSelector
		}
		r.byID[id.ID] = id
		r.order = append(r.order, id.ID)
	}
	return r, nil
}

// Load builds the registry from the built-in table plus the optional YAML overlay.
func Load(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	ids := Builtin()
	if cfg.RegistryPath != "" {
		overlay, err := LoadOverlay(cfg.RegistryPath)
		if err != nil {
			return nil, err
		}
		ids = overlay.Apply(ids)
		logger.Info().Str("path", cfg.RegistryPath).Int("entries", len(overlay.Games)).Msg("registry overlay applied")
	}

	reg, err := New(ids)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("identifiers", reg.Len()).Msg("identifier registry loaded")
	return reg, nil
}

func (r *Registry) Get(id string) (domain.Identifier, bool) {
	v, ok := r.byID[id]
	return v, ok
}

func (r *Registry) All() []domain.Identifier {
	out := make([]domain.Identifier, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.order) }

type Overlay struct {
	Games []OverlayGame `yaml:"games"`
}

type OverlayGame struct {
	ID              string        `yaml:"id"`
	Slug            string        `yaml:"slug"`
	Variant         string        `yaml:"variant"`
	Name            string        `yaml:"name"`
	Lobby           *OverlayLobby `yaml:"lobby"`
	Path            string        `yaml:"path"`
	CounterSelector string        `yaml:"counter_selector"`
	VariantSelector string        `yaml:"variant_selector"`
	VariantParam    string        `yaml:"variant_param"`
}

type OverlayLobby struct {
	Table   string `yaml:"table"`
	Variant string `yaml:"variant"`
}

func LoadOverlay(path string) (*Overlay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to parse registry overlay: %w", err)
	}
	return &o, nil
}

// Apply overrides matching built-ins field by field and appends new ids in
// lexical order after the built-ins.
func (o *Overlay) Apply(base []domain.Identifier) []domain.Identifier {
	index := make(map[string]int, len(base))
	out := make([]domain.Identifier, len(base))
	copy(out, base)
	for i, id := range out {
		index[id.ID] = i
	}

	var added []domain.Identifier
	for _, g := range o.Games {
		if g.ID == "" {
			continue
		}
		if i, ok := index[g.ID]; ok {
			out[i] = g.merge(out[i])
			continue
		}
		added = append(added, g.merge(domain.Identifier{ID: g.ID, Slug: g.ID, Name: g.ID, Lobby: domain.NoLobbyKey()}))
	}
	sort.Slice(added, func(i, j int) bool { return added[i].ID < added[j].ID })
	return append(out, added...)
}

func (g OverlayGame) merge(id domain.Identifier) domain.Identifier {
	if g.Slug != "" {
		id.Slug = g.Slug
		id.Target.Path = "/" + g.Slug + "/"
	}
	if g.Variant != "" {
		id.Variant = g.Variant
	}
	if g.Name != "" {
		id.Name = g.Name
	}
	if g.Lobby != nil {
		switch {
		case g.Lobby.Table == "":
			id.Lobby = domain.NoLobbyKey()
		case g.Lobby.Variant != "":
			id.Lobby = domain.VariantLobbyKey(g.Lobby.Table, g.Lobby.Variant)
		default:
			id.Lobby = domain.DefaultLobbyKey(g.Lobby.Table)
		}
	}
	if g.Path != "" {
		id.Target.Path = g.Path
	}
	if id.Target.Path == "" {
		id.Target.Path = "/" + id.Slug + "/"
	}
	if g.CounterSelector != "" {
		id.Target.CounterSelector = g.CounterSelector
	}
	if g.VariantSelector != "" {
		id.Target.VariantSelector = g.VariantSelector
	}
	if g.VariantParam != "" {
		id.Target.VariantParam = g.VariantParam
	}
	return id
}
