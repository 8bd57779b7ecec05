package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eduverse-labs/eduverse/src/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	t *testing.T

	mu        sync.Mutex
	reads     map[string]any
	writes    []writeRequest
	wallets   []string
	statuses  map[string][]transactionStatus
	throttled int
	failWith  string
}

func newFakeEngine(t *testing.T) (*fakeEngine, *Engine) {
	f := &fakeEngine{
		t:        t,
		reads:    map[string]any{},
		statuses: map[string][]transactionStatus{},
	}
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(ts.Close)

	e := NewEngine(config.ChainConfig{
		EngineURL:       ts.URL,
		AccessToken:     "secret",
		ChainID:         4202,
		ContractAddress: "0xcontract",
		WalletAddress:   "0xbackend",
		WriteTimeout:    5 * time.Second,
		PollMin:         time.Millisecond,
		PollMax:         5 * time.Millisecond,
	})
	e.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return f, e
}

func (f *fakeEngine) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assert.Equal(f.t, "Bearer secret", r.Header.Get("Authorization"))

	if f.throttled > 0 {
		f.throttled--
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if f.failWith != "" {
		f.writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": f.failWith}})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/contract/4202/0xcontract/read":
		fn := r.URL.Query().Get("functionName")
		key := fn
		if args := r.URL.Query().Get("args"); args != "" {
			key += "(" + args + ")"
		}
		result, ok := f.reads[key]
		if !ok {
			f.writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]any{"message": "no such read " + key}})
			return
		}
		f.writeJSON(w, http.StatusOK, map[string]any{"result": result})
	case r.Method == http.MethodPost && r.URL.Path == "/contract/4202/0xcontract/write":
		var req writeRequest
		require.Nil(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.writes = append(f.writes, req)
		f.wallets = append(f.wallets, r.Header.Get("x-backend-wallet-address"))
		f.writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"queueId": req.FunctionName + "-q"}})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/transaction/status/"):
		queueID := strings.TrimPrefix(r.URL.Path, "/transaction/status/")
		pending := f.statuses[queueID]
		if len(pending) == 0 {
			f.writeJSON(w, http.StatusOK, map[string]any{"result": transactionStatus{QueueID: queueID, Status: TxQueued}})
			return
		}
		status := pending[0]
		if len(pending) > 1 {
			f.statuses[queueID] = pending[1:]
		}
		f.writeJSON(w, http.StatusOK, map[string]any{"result": status})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestReads(t *testing.T) {
	f, e := newFakeEngine(t)
	ctx := context.Background()
	f.reads["getCourse(7)"] = map[string]any{
		"id":            "7",
		"title":         "Intro to Solidity",
		"thumbnailCID":  "abc123",
		"pricePerMonth": "50000000000000000",
		"creator":       "0xcreator",
		"createdAt":     1700000000,
		"isActive":      true,
	}
	f.reads["getCourseSections(7)"] = []map[string]any{
		{"id": "0", "title": "Setup", "contentCID": "bafyA", "duration": "600", "orderId": "0"},
		{"id": "1", "title": "Types", "contentCID": "no-content", "duration": 300, "orderId": "1"},
	}
	f.reads["hasValidLicense(0xme,7)"] = true
	f.reads["getLicense(0xme,7)"] = map[string]any{"student": "0xme", "expiryTimestamp": "1900000000"}
	f.reads["getUserProgress(0xme,7)"] = map[string]any{
		"completedSections": "1",
		"totalSections":     "2",
		"sectionsCompleted": []bool{true, false},
	}
	f.reads["maxPriceInETH"] = "1000000000000000000"

	course, err := e.GetCourse(ctx, 7)
	require.Nil(t, err)
	assert.Equal(t, uint64(7), course.ID)
	assert.Equal(t, "Intro to Solidity", course.Title)
	assert.Equal(t, "50000000000000000", course.PricePerPeriod.String())
	assert.Equal(t, int64(1700000000), course.CreatedAt.Unix())
	assert.False(t, course.IsFree())

	sections, err := e.GetCourseSections(ctx, 7)
	require.Nil(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "7-0", sections[0].ID)
	assert.Equal(t, uint32(600), sections[0].DurationSeconds)
	assert.Equal(t, "7-1", sections[1].ID)
	assert.Equal(t, 1, sections[1].OrderIndex)

	valid, err := e.HasValidLicense(ctx, "0xme", 7)
	require.Nil(t, err)
	assert.True(t, valid)

	license, err := e.GetLicense(ctx, "0xme", 7)
	require.Nil(t, err)
	assert.Equal(t, int64(1900000000), license.ExpiresAt.Unix())

	progress, err := e.GetUserProgress(ctx, "0xme", 7)
	require.Nil(t, err)
	assert.Equal(t, 50, progress.Percentage)
	assert.True(t, progress.IsSectionCompleted(0))
	assert.False(t, progress.IsSectionCompleted(1))

	maxPrice, err := e.MaxPrice(ctx)
	require.Nil(t, err)
	assert.Equal(t, 0, maxPrice.Cmp(big.NewInt(1e18)))
}

func TestWrites(t *testing.T) {
	t.Run("create course polls until mined", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.statuses["createCourse-q"] = []transactionStatus{
			{Status: TxQueued},
			{Status: TxSent},
			{Status: TxMined, TransactionHash: "0xtx", ReturnValue: json.RawMessage(`"7"`)},
		}

		minted, err := e.CreateCourse(context.Background(), "Intro", "desc", "abc123", big.NewInt(0))
		require.Nil(t, err)
		assert.Equal(t, uint64(7), minted.ID)
		assert.Equal(t, "0xtx", minted.TxHash)

		require.Len(t, f.writes, 1)
		assert.Equal(t, "createCourse", f.writes[0].FunctionName)
		assert.Equal(t, []string{"Intro", "desc", "abc123", "0"}, f.writes[0].Args)
		assert.Equal(t, "0xbackend", f.wallets[0])
	})
	t.Run("add section builds section id", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.statuses["addCourseSection-q"] = []transactionStatus{
			{Status: TxMined, TransactionHash: "0xs", ReturnValue: json.RawMessage(`0`)},
		}

		minted, err := e.AddCourseSection(context.Background(), 7, "Setup", "bafyA", 600)
		require.Nil(t, err)
		assert.Equal(t, "7-0", minted.ID)
		assert.Equal(t, []string{"7", "Setup", "bafyA", "600"}, f.writes[0].Args)
	})
	t.Run("errored transaction carries the engine message", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.statuses["completeSection-q"] = []transactionStatus{
			{Status: TxErrored, ErrorMessage: "insufficient funds for gas * price + value"},
		}

		_, err := e.CompleteSection(context.Background(), 7, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient funds")
		assert.Equal(t, ClassInsufficientFunds, Classify(err))
	})
	t.Run("never mined times out", func(t *testing.T) {
		_, e := newFakeEngine(t)
		e.cfg.WriteTimeout = 50 * time.Millisecond
		e.sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
				return nil
			}
		}

		_, err := e.CompleteSection(context.Background(), 7, 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, ClassTimeout, Classify(err))
	})
	t.Run("missing return value", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.statuses["createCourse-q"] = []transactionStatus{{Status: TxMined, TransactionHash: "0xtx"}}

		_, err := e.CreateCourse(context.Background(), "Intro", "desc", "abc123", nil)
		assert.ErrorContains(t, err, "returned no id")
	})
	t.Run("null return value is not course zero", func(t *testing.T) {
		for _, raw := range []string{`null`, ` null `, `""`} {
			f, e := newFakeEngine(t)
			f.statuses["createCourse-q"] = []transactionStatus{
				{Status: TxMined, TransactionHash: "0xtx", ReturnValue: json.RawMessage(raw)},
			}

			minted, err := e.CreateCourse(context.Background(), "Intro", "desc", "abc123", nil)
			assert.ErrorContains(t, err, "returned no id", raw)
			assert.Zero(t, minted.ID)
		}
	})
}

func TestBadEngineURL(t *testing.T) {
	e := NewEngine(config.ChainConfig{EngineURL: "http://[::1", WriteTimeout: time.Second})

	assert.NotPanics(t, func() {
		_, err := e.HasValidLicense(context.Background(), "0xme", 7)
		assert.ErrorContains(t, err, "failed to build contract engine request")
	})
}

func TestRateLimitAndErrors(t *testing.T) {
	t.Run("retries after 429", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.throttled = 2
		f.reads["hasValidLicense(0xme,7)"] = false

		var waits []time.Duration
		e.sleep = func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		valid, err := e.HasValidLicense(context.Background(), "0xme", 7)
		require.Nil(t, err)
		assert.False(t, valid)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
	})
	t.Run("engine message is kept verbatim", func(t *testing.T) {
		f, e := newFakeEngine(t)
		f.failWith = "user rejected the request"

		_, err := e.GetCourse(context.Background(), 7)
		require.Error(t, err)

		var engineErr *EngineError
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(t, http.StatusBadRequest, engineErr.Status)
		assert.Equal(t, "user rejected the request", engineErr.Message)
		assert.Equal(t, ClassUserRejected, Classify(err))
	})
	t.Run("unreachable engine is a network error", func(t *testing.T) {
		e := NewEngine(config.ChainConfig{EngineURL: "http://127.0.0.1:1", WriteTimeout: time.Second})
		_, err := e.GetCourse(context.Background(), 7)
		require.Error(t, err)
		assert.Equal(t, ClassNetwork, Classify(err))
	})
}
