package fetcher

import (
	"context"
	"fmt"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// StaticEngine fetches the server-rendered page directly and reads the
// counter from the markup. Variants are selected through a query parameter.
type StaticEngine struct {
	baseURL string
	logger  zerolog.Logger
}

func NewStaticEngine(cfg *config.Config, logger zerolog.Logger) *StaticEngine {
	return &StaticEngine{baseURL: cfg.TargetBaseURL, logger: logger}
}

func (e *StaticEngine) Name() string { return "static" }

func (e *StaticEngine) Open(context.Context) (Session, error) {
	return &staticSession{
		engine: e,
		client: &fasthttp.Client{
			MaxConnsPerHost:     constants.MaxConcurrency,
			ReadTimeout:         constants.ItemTimeout,
			WriteTimeout:        constants.ItemTimeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
	}, nil
}

type staticSession struct {
	engine *StaticEngine
	client *fasthttp.Client
}

func (s *staticSession) Players(ctx context.Context, id domain.Identifier) (int, error) {
	target, err := targetURL(s.engine.baseURL, id, true)
	if err != nil {
		return 0, err
	}

	body, err := get(ctx, s.client, target)
	if err != nil {
		return 0, err
	}

	players, err := ExtractCounter(body, id.Target.CounterSelector)
	if err != nil {
		return 0, err
	}
	s.engine.logger.Debug().Str("id", id.ID).Int("players", players).Msg("static fetch parsed counter")
	return players, nil
}

func (s *staticSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func targetURL(base string, id domain.Identifier, withVariantParam bool) (string, error) {
	u, err := url.Parse(base + id.Target.Path)
	if err != nil {
		return "", fmt.Errorf("invalid target url for %s: %w", id.ID, err)
	}
	if withVariantParam && id.Target.VariantParam != "" {
		q := u.Query()
		q.Set("variant", id.Target.VariantParam)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func get(ctx context.Context, client *fasthttp.Client, target string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	if err := do(ctx, client, req, resp); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("target returned %d", resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func do(ctx context.Context, client *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return client.Do(req, resp)
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout {
			return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return nil
}
