package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/tokenstream/internal/auth"
	"github.com/gyaneshwarpardhi/tokenstream/internal/engine"
	"github.com/gyaneshwarpardhi/tokenstream/internal/ledger"
	"github.com/gyaneshwarpardhi/tokenstream/internal/oracle"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/vault"
)

type fixedQueue float64

func (q fixedQueue) QueueUtilization() float64 { return float64(q) }

type server struct {
	t      *testing.T
	h      http.Handler
	ledger *ledger.Memory
	now    int64
}

func newServer(t *testing.T, mutate func(*Options)) *server {
	t.Helper()
	s := &server{t: t, ledger: ledger.NewMemory()}
	eng := engine.New(engine.Deps{
		Store:   store.NewRecords(store.NewMemory()),
		Ledger:  s.ledger,
		Auth:    auth.NewGrants(),
		Clock:   engine.ClockFunc(func() int64 { return s.now }),
		Custody: "custody",
	}, engine.Policy{})
	require.NoError(t, s.ledger.Mint(context.Background(), "XLM", "alice", 10_000))

	feed, err := oracle.NewStatic("1")
	require.NoError(t, err)
	opts := Options{
		Engine: eng,
		Dev: &Dev{
			Ledger: s.ledger,
			Vaults: map[stream.Address]*vault.Memory{"v1": vault.NewMemory("v1", "XLM", "custody", s.ledger, 100)},
			Feeds:  map[string]*oracle.Static{"xlm": feed},
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	s.h = New(opts)
	return s
}

func (s *server) do(method, path string, principal stream.Address, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if principal != "" {
		req.Header.Set(PrincipalHeader, string(principal))
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var createBody = map[string]any{
	"sender": "alice", "receiver": "bob", "token": "XLM",
	"amount": 1000, "start_time": 0, "end_time": 100,
}

func TestStreamLifecycleOverHTTP(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(http.MethodPost, "/v1/streams", "alice", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decodeBody(t, rec)["stream_id"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(http.MethodGet, "/v1/streams/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1000), decodeBody(t, rec)["total_amount"])

	s.now = 25
	rec = s.do(http.MethodPost, "/v1/streams/1/withdraw", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(stream.CodeNotReceiptOwner), decodeBody(t, rec)["code"])

	rec = s.do(http.MethodPost, "/v1/streams/1/withdraw", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(250), decodeBody(t, rec)["amount"])

	rec = s.do(http.MethodPost, "/v1/streams/1/pause", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paused", decodeBody(t, rec)["state"])

	rec = s.do(http.MethodGet, "/v1/streams/1/receipt/metadata", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(750), decodeBody(t, rec)["locked_balance"])

	rec = s.do(http.MethodPost, "/v1/streams/1/cancel", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(750), decodeBody(t, rec)["to_sender"])

	rec = s.do(http.MethodPost, "/v1/streams/1/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, string(stream.CodeAlreadyCancelled), body["code"])
	assert.Equal(t, float64(1), body["stream_id"])
}

func TestRequestErrors(t *testing.T) {
	s := newServer(t, nil)
	tests := []struct {
		name      string
		method    string
		path      string
		principal stream.Address
		body      any
		want      int
	}{
		{"unknown stream", http.MethodGet, "/v1/streams/99", "", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/streams/abc", "", nil, http.StatusBadRequest},
		{"no principal", http.MethodPost, "/v1/streams", "", createBody, http.StatusForbidden},
		{"invalid JSON", http.MethodPost, "/v1/streams", "alice", "not an object", http.StatusBadRequest},
		{"invalid time range", http.MethodPost, "/v1/streams", "alice", map[string]any{
			"sender": "alice", "receiver": "bob", "token": "XLM", "amount": 1000, "start_time": 10, "end_time": 10,
		}, http.StatusBadRequest},
		{"unknown proposal", http.MethodGet, "/v1/proposals/3", "", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.principal, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	s := newServer(t, func(o *Options) { o.Limiter = rate.NewLimiter(0, 1) })

	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/v1/streams", "alice", createBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/v1/streams", "alice", createBody).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/streams/1", "", nil).Code)
}

func TestProbes(t *testing.T) {
	s := newServer(t, func(o *Options) { o.Queue = fixedQueue(0.9) })
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/config/reload", "", nil).Code)
}

func TestDevRoutes(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(http.MethodPost, "/v1/dev/mint", "", map[string]any{"token": "XLM", "to": "carol", "amount": 42})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodGet, "/v1/dev/balances/XLM/carol", "", nil)
	assert.Equal(t, float64(42), decodeBody(t, rec)["balance"])

	rec = s.do(http.MethodPost, "/v1/dev/oracles/xlm/price", "", map[string]any{"price": "0.25", "as_of": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0.2500000", decodeBody(t, rec)["price"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/v1/dev/vaults/nope/accrue", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/dev/vaults/v1/accrue", "", nil).Code)

	off := newServer(t, func(o *Options) { o.Dev = nil })
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodPost, "/v1/dev/mint", "", map[string]any{}).Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[stream.Class]int{
		stream.ClassValidation:    http.StatusBadRequest,
		stream.ClassAuthorization: http.StatusForbidden,
		stream.ClassNotFound:      http.StatusNotFound,
		stream.ClassState:         http.StatusConflict,
		stream.ClassExternal:      http.StatusBadGateway,
		stream.ClassArithmetic:    http.StatusUnprocessableEntity,
		"":                        http.StatusInternalServerError,
	}
	for class, want := range tests {
		assert.Equal(t, want, statusFor(class), class)
	}
}
