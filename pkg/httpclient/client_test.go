package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/pkg/apierr"
	"market-gateway/pkg/i18n"
)

func TestSignKnownVectors(t *testing.T) {
	base := signParams{
		AppKey:      "key",
		AppSecret:   "secret",
		AccessToken: "tok",
		Timestamp:   "1700000000",
	}

	post := base
	post.Method = "POST"
	post.Path = "/v1/trade/order"
	post.Body = []byte(`{"symbol":"700.HK"}`)
	assert.Equal(t,
		"HMAC-SHA256 SignedHeaders=authorization;x-api-key;x-timestamp, Signature=befc47cc3a10b821960e2ab3e3bc76b8d463c1b156c2c5ae062e054a8be3a78a",
		sign(post))

	get := base
	get.Method = "get"
	get.Path = "/v1/trade/order"
	get.Query = "order_id=42"
	assert.Equal(t,
		"HMAC-SHA256 SignedHeaders=authorization;x-api-key;x-timestamp, Signature=27b5895b86350f5683bbd08ed15962e27bb87288e44ca845bb96c44a9cf45066",
		sign(get))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:     srv.URL,
		AppKey:      "key",
		AppSecret:   "secret",
		AccessToken: "tok",
		Language:    i18n.LangZHHK,
	}, nil)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	c.retryDelay = time.Millisecond
	return c
}

func TestDoSignsAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		want := sign(signParams{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body,
			AppKey: "key", AppSecret: "secret", AccessToken: "tok", Timestamp: r.Header.Get("X-Timestamp"),
		})
		assert.Equal(t, want, r.Header.Get("X-Api-Signature"))
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		assert.Equal(t, "1700000000", r.Header.Get("X-Timestamp"))
		assert.Equal(t, "zh-HK", r.Header.Get("Accept-Language"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.Equal(t, "42", r.URL.Query().Get("order_id"))
		_, _ = w.Write([]byte(`{"code":0,"message":"","data":{"order_id":"42","status":"NewStatus"}}`))
	})

	var out struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	err := c.Get(context.Background(), "/v1/trade/order", url.Values{"order_id": {"42"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "42", out.OrderID)
	assert.Equal(t, "NewStatus", out.Status)
}

func TestDoServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-trace-id", "trace-1")
		_, _ = w.Write([]byte(`{"code":602001,"message":"order not found"}`))
	})

	err := c.Post(context.Background(), "/v1/trade/order", map[string]string{"symbol": "700.HK"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierr.ErrServer))
	var se *apierr.ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(602001), se.Code)
	assert.Equal(t, "order not found", se.Message)
	assert.Equal(t, "trace-1", se.TraceID)
}

func TestDoRetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"otp":"one-time"}}`))
	})

	otp, err := c.SocketToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one-time", otp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Get(context.Background(), "/v1/asset/account", nil, nil)
	assert.True(t, errors.Is(err, apierr.ErrNetwork))
	assert.Equal(t, int32(1+retryCount), calls.Load())
}

func TestDoBadStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})

	err := c.Get(context.Background(), "/v1/asset/account", nil, nil)
	require.Error(t, err)
	var se *statusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSocketTokenEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"otp":""}}`))
	})
	_, err := c.SocketToken(context.Background())
	assert.True(t, errors.Is(err, apierr.ErrAuth))
}
