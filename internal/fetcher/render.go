package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const renderSessionHeader = "X-Render-Session"

// RenderEngine drives a remote headless-browser service. Each session is
// a browser context on the service side keyed by the session header; the
// service navigates, optionally clicks the variant selector once, waits for
// the counter selector and returns the rendered html. A 408 from the
// service means the counter never appeared.
type RenderEngine struct {
	renderURL string
	baseURL   string
	logger    zerolog.Logger
}

type renderRequest struct {
	URL             string          `json:"url"`
	WaitForSelector waitForSelector `json:"waitForSelector"`
	ClickSelector   string          `json:"clickSelector,omitempty"`
}

type waitForSelector struct {
	Selector string `json:"selector"`
	Timeout  int64  `json:"timeout"`
}

func NewRenderEngine(cfg *config.Config, logger zerolog.Logger) *RenderEngine {
	return &RenderEngine{
		renderURL: strings.TrimRight(cfg.RenderURL, "/"),
		baseURL:   cfg.TargetBaseURL,
		logger:    logger,
	}
}

func (e *RenderEngine) Name() string { return "render" }

func (e *RenderEngine) Open(ctx context.Context) (Session, error) {
	if e.renderURL == "" {
		return nil, errors.New("render engine requires RENDER_URL")
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate render session id: %w", err)
	}
	e.logger.Debug().Str("session", id).Msg("render session opened")
	return &renderSession{
		engine: e,
		id:     id,
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.MaxConcurrency,
			ReadTimeout:         constants.ItemTimeout + 2*time.Second,
			WriteTimeout:        constants.ItemTimeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
	}, nil
}

type renderSession struct {
	engine *RenderEngine
	id     string
	client *fasthttp.Client
}

func (s *renderSession) Players(ctx context.Context, id domain.Identifier) (int, error) {
	target, err := targetURL(s.engine.baseURL, id, false)
	if err != nil {
		return 0, err
	}

	wait := constants.ItemTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	payload, err := json.Marshal(renderRequest{
		URL:             target,
		WaitForSelector: waitForSelector{Selector: id.Target.CounterSelector, Timeout: wait.Milliseconds()},
		ClickSelector:   id.Target.VariantSelector,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode render request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.engine.renderURL + "/content")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(renderSessionHeader, s.id)
	req.SetBody(payload)

	if err := do(ctx, s.client, req, resp); err != nil {
		return 0, err
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusRequestTimeout:
		return 0, fmt.Errorf("%w: %s", ErrCounterNotFound, id.Target.CounterSelector)
	default:
		return 0, fmt.Errorf("render service returned %d", resp.StatusCode())
	}

	return ExtractCounter(resp.Body(), id.Target.CounterSelector)
}

// Close releases the remote browser context. Failures are logged only.
func (s *renderSession) Close() error {
	defer s.client.CloseIdleConnections()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.engine.renderURL + "/sessions/" + s.id)
	req.Header.SetMethod(fasthttp.MethodDelete)

	if err := s.client.DoTimeout(req, resp, 2*time.Second); err != nil {
		s.engine.logger.Warn().Err(err).Str("session", s.id).Msg("failed to close render session")
		return err
	}
	s.engine.logger.Debug().Str("session", s.id).Int("status", resp.StatusCode()).Msg("render session closed")
	return nil
}
