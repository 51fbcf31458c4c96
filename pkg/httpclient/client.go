// Package httpclient is the signed REST channel to the OpenAPI.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/i18n"
	"market-gateway/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultTimeout     = 30 * time.Second
	retryCount         = 5
	retryInitialDelay  = 100 * time.Millisecond
	retryFactor        = 2
	defaultRateLimit   = 30 // requests per second
	defaultRateBurst   = 30
	userAgent          = "market-gateway/1.0"
	headerTraceID      = "x-trace-id"
	headerAPISignature = "X-Api-Signature"
)

// Config holds credentials and endpoint for the REST channel.
type Config struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	AccessToken string
	Language    i18n.Language
	Timeout     time.Duration // per attempt; default 30s
	RateLimit   rate.Limit    // default 30/s
	RateBurst   int
}

// Client signs every request and decodes the {code,message,data} envelope.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger

	now        func() time.Time
	retryDelay time.Duration
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Language == "" {
		cfg.Language = i18n.LangEN
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		log:        logger.OrNop(log).Named("http"),
		now:        time.Now,
		retryDelay: retryInitialDelay,
	}
}

type envelope struct {
	Code    int64               `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// statusError is a non-JSON reply with an unexpected HTTP status.
type statusError struct {
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.Status)
}

// Get issues a GET with query parameters and decodes data into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.Do(ctx, http.MethodDelete, path, query, body, out)
}

// Do sends a signed request. A 429 reply is retried with exponential
// backoff; any other failure is returned to the caller.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	delay := c.retryDelay
	err := c.send(ctx, method, path, query, payload, out)
	for attempt := 0; attempt < retryCount && isTooManyRequests(err); attempt++ {
		c.log.Debug("rate limited, retrying", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctxErr(ctx.Err())
		case <-time.After(delay):
		}
		delay *= retryFactor
		err = c.send(ctx, method, path, query, payload, out)
	}
	if isTooManyRequests(err) {
		return fmt.Errorf("%w: too many requests", apierr.ErrNetwork)
	}
	return err
}

func isTooManyRequests(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == http.StatusTooManyRequests
}

func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apierr.ErrTimeout, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return ctxErr(err)
	}

	endpoint := c.cfg.BaseURL + path
	rawQuery := ""
	if len(query) > 0 {
		rawQuery = query.Encode()
		endpoint += "?" + rawQuery
	}
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Api-Key", c.cfg.AppKey)
	req.Header.Set("Authorization", c.cfg.AccessToken)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept-Language", c.cfg.Language.Header())
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set(headerAPISignature, sign(signParams{
		Method:      method,
		Path:        req.URL.Path,
		Query:       rawQuery,
		Body:        body,
		AppKey:      c.cfg.AppKey,
		AppSecret:   c.cfg.AppSecret,
		AccessToken: c.cfg.AccessToken,
		Timestamp:   ts,
	}))

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctxErr(ctx.Err())
		}
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return fmt.Errorf("%w: %s %s: %v", apierr.ErrTimeout, method, path, err)
		}
		return fmt.Errorf("%w: %s %s: %v", apierr.ErrNetwork, method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", apierr.ErrNetwork, err)
	}
	traceID := res.Header.Get(headerTraceID)
	c.log.Debug("http response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.Duration("latency", time.Since(start)),
		zap.String("trace_id", traceID))

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if res.StatusCode == http.StatusOK {
			return fmt.Errorf("decode response envelope: %w", err)
		}
		return &statusError{Status: res.StatusCode}
	}
	if env.Code != 0 {
		return &apierr.ServerError{Code: env.Code, Message: env.Message, TraceID: traceID}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// SocketToken fetches a one-time password for the WebSocket handshake.
func (c *Client) SocketToken(ctx context.Context) (string, error) {
	var resp struct {
		OTP string `json:"otp"`
	}
	if err := c.Get(ctx, "/v2/socket/token", nil, &resp); err != nil {
		return "", fmt.Errorf("socket token: %w", err)
	}
	if resp.OTP == "" {
		return "", fmt.Errorf("%w: empty socket token", apierr.ErrAuth)
	}
	return resp.OTP, nil
}
