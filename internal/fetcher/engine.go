package fetcher

import (
	"context"
	"errors"
	"fmt"
	"livegame-tracker/internal/domain"
	"sort"
	"time"
)

var ErrCounterNotFound = errors.New("counter element not found")

// Engine opens automation sessions. A session is shared by one chunk of
// directed fetches and must be closed on every exit path.
type Engine interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

type Session interface {
	// Players loads the target page for id and returns the parsed counter.
	Players(ctx context.Context, id domain.Identifier) (int, error)
	Close() error
}

type Engines struct {
	byName      map[string]Engine
	defaultName string
}

func NewEngines(defaultName string, engines ...Engine) (*Engines, error) {
	e := &Engines{byName: make(map[string]Engine, len(engines)), defaultName: defaultName}
	for _, eng := range engines {
		e.byName[eng.Name()] = eng
	}
	if _, ok := e.byName[defaultName]; !ok {
		return nil, fmt.Errorf("%w: default %q", domain.ErrUnknownEngine, defaultName)
	}
	return e, nil
}

// Select returns the named engine, or the default for an empty name.
func (e *Engines) Select(name string) (Engine, error) {
	if name == "" {
		name = e.defaultName
	}
	eng, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEngine, name)
	}
	return eng, nil
}

func (e *Engines) Names() []string {
	names := make([]string, 0, len(e.byName))
	for n := range e.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Directed runs one bounded fetch and folds every outcome, including a
// missing element or a timeout, into a FetchResult.
func Directed(ctx context.Context, sess Session, id domain.Identifier, timeout time.Duration, now func() time.Time) domain.FetchResult {
	if now == nil {
		now = time.Now
	}
	start := now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	players, err := sess.Players(ctx, id)
	end := now()
	res := domain.FetchResult{
		ID:         id.ID,
		Source:     domain.SourceDirected,
		DurationMs: end.Sub(start).Milliseconds(),
		FetchedAt:  end.UnixMilli(),
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		stage := "fetch"
		switch {
		case errors.Is(err, ErrCounterNotFound):
			stage = "element"
		case errors.Is(err, context.DeadlineExceeded):
			stage = "timeout"
		}
		res.Error = (&domain.AcquisitionError{ID: id.ID, Stage: stage, Err: err}).Error()
		return res
	}

	res.OK = true
	res.Players = &players
	return res
}
