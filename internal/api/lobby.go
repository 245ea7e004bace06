package api

import (
	"context"
	"errors"
	"fmt"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/singleflight"
)

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

// LobbyPayload is one decoded response of the batched lobby endpoint. Tables
// are keyed by the provider's table name and carry either a bare number or
// {"players": n, "variants": {"<variant>": n | {"players": n}}}.
type LobbyPayload struct {
	FetchedAt time.Time
	doc       gjson.Result
}

func NewLobbyPayload(body []byte, fetchedAt time.Time) (*LobbyPayload, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("lobby payload is not valid json")
	}
	doc := gjson.ParseBytes(body)
	if data := doc.Get("data"); data.IsObject() {
		doc = data
	}
	if !doc.IsObject() {
		return nil, errors.New("lobby payload is not an object")
	}
	return &LobbyPayload{FetchedAt: fetchedAt, doc: doc}, nil
}

// Players resolves a lobby key. ok is false when the payload does not carry
// a usable value for it.
func (p *LobbyPayload) Players(key domain.LobbyKey) (int, bool) {
	if p == nil || !key.Covered() {
		return 0, false
	}
	table := p.doc.Get(gjson.Escape(key.Table))
	if !table.Exists() {
		return 0, false
	}

	var v gjson.Result
	switch key.Kind {
	case domain.LobbyDefault:
		v = table
		if table.IsObject() {
			v = table.Get("players")
		}
	case domain.LobbyVariant:
		v = table.Get("variants." + gjson.Escape(key.Variant))
		if v.IsObject() {
			v = v.Get("players")
		}
	default:
		return 0, false
	}

	if v.Type != gjson.Number {
		return 0, false
	}
	f := v.Float()
	if f < 0 || f > constants.MaxPlayers || f != float64(int64(f)) {
		return 0, false
	}
	return int(f), true
}

type lobbyEntry struct {
	payload *LobbyPayload
	until   time.Time
}

// LobbyCache holds the most recent lobby payload for a short TTL so a burst
// of triggers costs one provider call.
type LobbyCache struct {
	mu    sync.RWMutex
	entry *lobbyEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewLobbyCache(ttl time.Duration, now func() time.Time) *LobbyCache {
	if now == nil {
		now = time.Now
	}
	return &LobbyCache{ttl: ttl, now: now}
}

func (c *LobbyCache) Get() (*LobbyPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry != nil && c.now().Before(c.entry.until) {
		return c.entry.payload, true
	}
	return nil, false
}

func (c *LobbyCache) Put(p *LobbyPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &lobbyEntry{payload: p, until: c.now().Add(c.ttl)}
}

type LobbyClient struct {
	url         string
	apiKey      string
	client      *fasthttp.Client
	cache       *LobbyCache
	group       singleflight.Group
	now         func() time.Time
	logger      zerolog.Logger
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

func NewLobbyClient(cfg *config.Config, cache *LobbyCache, logger zerolog.Logger) *LobbyClient {
	return &LobbyClient{
		url:    cfg.LobbyURL,
		apiKey: cfg.LobbyAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}
}

func (c *LobbyClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *LobbyClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = c.now()
}

// Lookup returns the cached payload or performs one provider call. Any
// failure is reported as domain.ErrLobbyUnavailable.
func (c *LobbyClient) Lookup(ctx context.Context) (*LobbyPayload, error) {
	if p, ok := c.cache.Get(); ok {
		c.logger.Debug().Time("fetched_at", p.FetchedAt).Msg("lobby cache hit")
		return p, nil
	}

	v, err, shared := c.group.Do("lobby", func() (any, error) {
		if p, ok := c.cache.Get(); ok {
			return p, nil
		}
		p, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Put(p)
		return p, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.url).Msg("lobby lookup failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrLobbyUnavailable, err)
	}
	c.logger.Debug().Bool("shared", shared).Msg("lobby fetched")
	return v.(*LobbyPayload), nil
}

func (c *LobbyClient) fetch(ctx context.Context) (*LobbyPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	deadline, _ := ctx.Deadline()
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	c.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("lobby API error: %d", resp.StatusCode())
	}

	return NewLobbyPayload(resp.Body(), c.now())
}
