package ratelimit

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(max int) (*Gate, *time.Time) {
	now := time.Unix(1700000000, 0)
	gate := NewGate(NewMemoryStore(),
		Config{Window: 60 * time.Second, Max: max},
		Config{Window: 60 * time.Second, Max: 2},
		[]string{"/api/v1/generate"},
	)
	gate.now = func() time.Time { return now }
	return gate, &now
}

func TestGateAdmitsUpToLimitExactly(t *testing.T) {
	gate, _ := newTestGate(10)
	ctx := context.Background()

	admitted := 0
	for i := 0; i < 1000; i++ {
		_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, ErrRateLimited)
		}
	}
	assert.Equal(t, 10, admitted)
}

func TestGateDenialCarriesRetryAfter(t *testing.T) {
	gate, _ := newTestGate(1)
	ctx := context.Background()

	_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
	require.NoError(t, err)

	d, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 60, d.RetryAfter)
	assert.Equal(t, 0, d.Remaining)
}

func TestGateWindowSlides(t *testing.T) {
	gate, now := newTestGate(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
		require.NoError(t, err)
	}
	_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
	require.ErrorIs(t, err, ErrRateLimited)

	// a full window later the same identity gets a fresh budget
	*now = now.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
		require.NoError(t, err, "request %d after window should be admitted", i)
	}
}

func TestGateExpensivePathUsesTighterWindow(t *testing.T) {
	gate, _ := newTestGate(100)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := gate.Admit(ctx, "user-1", "/api/v1/generate")
		require.NoError(t, err)
	}
	_, err := gate.Admit(ctx, "user-1", "/api/v1/generate")
	require.ErrorIs(t, err, ErrRateLimited)

	// the default window is untouched
	_, err = gate.Admit(ctx, "user-1", "/api/v1/runs")
	assert.NoError(t, err)
}

func TestGateIdentitiesAreIndependent(t *testing.T) {
	gate, _ := newTestGate(1)
	ctx := context.Background()

	_, err := gate.Admit(ctx, "user-1", "/api/v1/runs")
	require.NoError(t, err)
	_, err = gate.Admit(ctx, "user-2", "/api/v1/runs")
	assert.NoError(t, err)
}

func TestGateConcurrentAdmitNeverOvershoots(t *testing.T) {
	gate, _ := newTestGate(25)
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Admit(ctx, "user-1", "/api/v1/runs"); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(25), admitted.Load())
}

type recordingStore struct{ ttlSec int }

func (r *recordingStore) Admit(_ context.Context, _, _ string, _, _ int64, _ int, ttlSec int) (int, bool, error) {
	r.ttlSec = ttlSec
	return 1, true, nil
}

func TestGateTTLCoversFractionalWindows(t *testing.T) {
	rec := &recordingStore{}
	gate := NewGate(rec,
		Config{Window: 1500 * time.Millisecond, Max: 5},
		ExpensiveConfig, nil)

	_, err := gate.Admit(context.Background(), "user-1", "/api/v1/runs")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ttlSec, "1.5s window rounds up to 2s plus slack")

	gate = NewGate(rec, Config{Window: 60 * time.Second, Max: 5}, ExpensiveConfig, nil)
	_, err = gate.Admit(context.Background(), "user-1", "/api/v1/runs")
	require.NoError(t, err)
	assert.Equal(t, 61, rec.ttlSec)
}

type failingStore struct{}

func (failingStore) Admit(context.Context, string, string, int64, int64, int, int) (int, bool, error) {
	return 0, false, errors.New("connection refused")
}

func TestGateStoreFailureIsUnavailableNotDenial(t *testing.T) {
	gate := NewGate(failingStore{}, DefaultConfig, ExpensiveConfig, nil)
	_, err := gate.Admit(context.Background(), "user-1", "/api/v1/runs")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestIdentityResolutionOrder(t *testing.T) {
	claims := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-42"}`))
	jwt := "eyJhbGciOiJIUzI1NiJ9." + claims + ".sig"

	r := httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.Header.Set("Authorization", "Bearer "+jwt)
	r.Header.Set("X-API-Key", "sk-abcdef123456")
	assert.Equal(t, "user-42", Identity(r), "jwt subject wins")

	r = httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.Header.Set("X-API-Key", "sk-abcdef123456")
	assert.Equal(t, "key:sk-abcde", Identity(r), "api key truncates to 8 chars")

	r = httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	assert.Equal(t, "ip:203.0.113.9", Identity(r))

	r = httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	assert.Equal(t, "ip:198.51.100.7", Identity(r))

	r = httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.RemoteAddr = ""
	assert.Equal(t, "unknown", Identity(r))

	// malformed bearer token falls through to the next resolver
	r = httptest.NewRequest("POST", "/api/v1/generate", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	r.Header.Set("X-API-Key", "short")
	assert.Equal(t, "key:short", Identity(r))
}
