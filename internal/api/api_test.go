package api_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/hashtop/internal/aggregate"
	"codeberg.org/mutker/hashtop/internal/api"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/telemetry"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testAPI struct {
	srv   *httptest.Server
	store store.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "hashtop.db")}, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ingest, err := telemetry.NewService(s, telemetry.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	h, err := api.NewHandler(s, ingest, api.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, store: s}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(t, err)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (a *testAPI) createMiner(t *testing.T, wallet string) model.Miner {
	t.Helper()

	status, raw := a.do(t, http.MethodPost, "/api/v1/users", map[string]string{"wallet_addr": wallet, "fname": "Ada"})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = a.do(t, http.MethodPost, "/api/v1/users/"+wallet+"/miners", map[string]string{"name": "rig-1"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	return decode[model.Miner](t, raw)
}

func TestUserLifecycle(t *testing.T) {
	a := newTestAPI(t)

	status, raw := a.do(t, http.MethodPost, "/api/v1/users", map[string]string{
		"wallet_addr": walletA,
		"fname":       "Ada",
		"lname":       "Lovelace",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	created := decode[model.User](t, raw)
	assert.Equal(t, walletA, created.WalletAddr)
	assert.False(t, created.CreatedAt.IsZero())

	status, raw = a.do(t, http.MethodPost, "/api/v1/users", map[string]string{"wallet_addr": walletA})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", decode[errorBody](t, raw).Error.Code)

	status, raw = a.do(t, http.MethodPut, "/api/v1/users/"+walletA, map[string]string{"lname": "King"})
	require.Equal(t, http.StatusOK, status, string(raw))
	updated := decode[model.User](t, raw)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "King", updated.LastName)

	status, raw = a.do(t, http.MethodGet, "/api/v1/users/"+walletA, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[struct {
		User       model.User      `json:"user"`
		LatestStat *model.UserStat `json:"latest_stat"`
	}](t, raw)
	assert.Equal(t, "King", got.User.LastName)
	assert.Nil(t, got.LatestStat)

	status, _ = a.do(t, http.MethodDelete, "/api/v1/users/"+walletA, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, raw = a.do(t, http.MethodGet, "/api/v1/users/"+walletA, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[errorBody](t, raw).Error.Code)
}

func TestGetUserIncludesLatestStat(t *testing.T) {
	a := newTestAPI(t)
	a.createMiner(t, walletA)

	ctx := context.Background()
	base := time.Date(2021, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, a.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.AppendUserStats(ctx, []model.UserStat{
			{WalletAddr: walletA, Time: base, Balance: 1},
			{WalletAddr: walletA, Time: base.Add(10 * time.Minute), Balance: 2},
		})
	}))

	status, raw := a.do(t, http.MethodGet, "/api/v1/users/"+walletA, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[struct {
		LatestStat *model.UserStat `json:"latest_stat"`
	}](t, raw)
	require.NotNil(t, got.LatestStat)
	assert.InDelta(t, 2.0, got.LatestStat.Balance, 1e-9)

	status, raw = a.do(t, http.MethodGet, "/api/v1/users/"+walletA+"/stats?start="+base.Add(time.Minute).Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.UserStat](t, raw), 1)
}

func TestUserRequestValidation(t *testing.T) {
	a := newTestAPI(t)
	a.createMiner(t, walletA)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad wallet in body", http.MethodPost, "/api/v1/users", map[string]string{"wallet_addr": "0x123"}, http.StatusBadRequest},
		{"missing wallet", http.MethodPost, "/api/v1/users", map[string]string{"fname": "Ada"}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/users", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/users", map[string]string{"wallet_addr": walletB, "email": "x"}, http.StatusBadRequest},
		{"bad wallet in path", http.MethodGet, "/api/v1/users/nope", nil, http.StatusBadRequest},
		{"empty update", http.MethodPut, "/api/v1/users/" + walletA, map[string]string{}, http.StatusBadRequest},
		{"update missing user", http.MethodPut, "/api/v1/users/" + walletB, map[string]string{"fname": "Bob"}, http.StatusNotFound},
		{"delete missing user", http.MethodDelete, "/api/v1/users/" + walletB, nil, http.StatusNotFound},
		{"miner for missing user", http.MethodPost, "/api/v1/users/" + walletB + "/miners", map[string]string{"name": "rig"}, http.StatusNotFound},
		{"miner without name", http.MethodPost, "/api/v1/users/" + walletA + "/miners", map[string]string{}, http.StatusBadRequest},
		{"inverted window", http.MethodGet, "/api/v1/users/" + walletA + "/stats?start=2021-06-02T00:00:00Z&end=2021-06-01T00:00:00Z", nil, http.StatusBadRequest},
		{"unparseable window", http.MethodGet, "/api/v1/users/" + walletA + "/stats?start=yesterday", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := a.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(raw))

			body := decode[errorBody](t, raw)
			assert.NotEmpty(t, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestMinerLifecycle(t *testing.T) {
	a := newTestAPI(t)
	miner := a.createMiner(t, walletA)
	_, err := uuid.Parse(miner.ID)
	require.NoError(t, err)

	status, raw := a.do(t, http.MethodGet, "/api/v1/users/"+walletA+"/miners", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]model.Miner](t, raw), 1)

	status, raw = a.do(t, http.MethodPut, "/api/v1/miners/"+miner.ID+"/health", `[
		{"gpu_no": 0, "temperature": 61, "power": 120, "hashrate": 30000000},
		{"gpu_no": 1, "temperature": 64, "power": 125, "hashrate": 31000000, "fan_speed": 55}
	]`)
	require.Equal(t, http.StatusNoContent, status, string(raw))

	status, raw = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[struct {
		Miner model.Miner `json:"miner"`
		GPUs  []model.GPU `json:"gpus"`
	}](t, raw)
	assert.Equal(t, "rig-1", got.Miner.Name)
	require.Len(t, got.GPUs, 2)
	assert.Equal(t, 1, got.GPUs[1].GPUNo)

	status, raw = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/health", nil)
	require.Equal(t, http.StatusOK, status)
	samples := decode[[]model.HealthSample](t, raw)
	require.Len(t, samples, 2)
	assert.Nil(t, samples[0].FanSpeed)
	require.NotNil(t, samples[1].FanSpeed)
	assert.InDelta(t, 55.0, *samples[1].FanSpeed, 1e-9)

	status, _ = a.do(t, http.MethodDelete, "/api/v1/miners/"+miner.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthIngestionErrors(t *testing.T) {
	a := newTestAPI(t)
	miner := a.createMiner(t, walletA)

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{"empty batch", miner.ID, `[]`, http.StatusBadRequest},
		{"negative gpu", miner.ID, `[{"gpu_no": -1, "temperature": 60, "power": 100, "hashrate": 1}]`, http.StatusBadRequest},
		{"duplicate gpu", miner.ID, `[{"gpu_no": 0, "temperature": 60, "power": 100, "hashrate": 1}, {"gpu_no": 0, "temperature": 61, "power": 100, "hashrate": 1}]`, http.StatusBadRequest},
		{"object instead of list", miner.ID, `{"gpu_no": 0}`, http.StatusBadRequest},
		{"unknown miner", uuid.NewString(), `[{"gpu_no": 0, "temperature": 60, "power": 100, "hashrate": 1}]`, http.StatusNotFound},
		{"malformed id", "rig-1", `[{"gpu_no": 0, "temperature": 60, "power": 100, "hashrate": 1}]`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := a.do(t, http.MethodPut, "/api/v1/miners/"+tt.id+"/health", tt.body)
			assert.Equal(t, tt.status, status, string(raw))
		})
	}

	status, raw := a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/health", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]model.HealthSample](t, raw))
}

func TestShareIngestion(t *testing.T) {
	a := newTestAPI(t)
	miner := a.createMiner(t, walletA)

	status, raw := a.do(t, http.MethodPut, "/api/v1/miners/"+miner.ID+"/shares", `[
		{"gpu_no": 0, "start": "2021-06-01T09:00:00Z", "valid": 10, "invalid": 1, "duration": 600}
	]`)
	require.Equal(t, http.StatusNoContent, status, string(raw))

	status, raw = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/shares", nil)
	require.Equal(t, http.StatusOK, status)
	shares := decode[[]model.ShareSample](t, raw)
	require.Len(t, shares, 1)
	assert.Equal(t, int64(10), shares[0].Valid)

	status, _ = a.do(t, http.MethodPut, "/api/v1/miners/"+miner.ID+"/shares", `[{"gpu_no": 0, "valid": 1}]`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSeries(t *testing.T) {
	a := newTestAPI(t)
	miner := a.createMiner(t, walletA)

	status, raw := a.do(t, http.MethodPut, "/api/v1/miners/"+miner.ID+"/health", `[
		{"gpu_no": 0, "temperature": 61, "power": 120, "hashrate": 30000000},
		{"gpu_no": 1, "temperature": 64, "power": 125, "hashrate": 31000000}
	]`)
	require.Equal(t, http.StatusNoContent, status, string(raw))

	status, raw = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/series?stat=temperature&tz=Asia/Tokyo", nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	result := decode[aggregate.Result](t, raw)
	assert.False(t, result.Empty)
	assert.Equal(t, "Asia/Tokyo", result.Timezone)
	require.Len(t, result.Series, 2)
	for i, s := range result.Series {
		assert.Equal(t, 1, s.Window)
		require.Len(t, s.Points, 1)
		require.NotNil(t, s.GPUNo)
		assert.Equal(t, i, *s.GPUNo)
	}
	assert.InDelta(t, 61.0, result.Series[0].Points[0].Value, 1e-9)

	status, raw = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/series?stat=shares", nil)
	require.Equal(t, http.StatusOK, status)
	empty := decode[aggregate.Result](t, raw)
	assert.True(t, empty.Empty)
	assert.NotEmpty(t, empty.Advisory)

	for _, query := range []string{"stat=humidity", "stat=temperature&tz=Mars/Olympus"} {
		status, _ = a.do(t, http.MethodGet, "/api/v1/miners/"+miner.ID+"/series?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, status, query)
	}

	status, _ = a.do(t, http.MethodGet, "/api/v1/miners/"+uuid.NewString()+"/series", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealthzAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)

	status, raw := a.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "hashtop_api_request_duration_seconds")

	status, raw = a.do(t, http.MethodGet, "/api/v1/statistics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "temperature")
}

func TestServerShutsDownOnCancel(t *testing.T) {
	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "hashtop.db")}, logger.Default())
	require.NoError(t, err)
	defer s.Close()

	ingest, err := telemetry.NewService(s, telemetry.DefaultConfig(), logger.Default())
	require.NoError(t, err)
	h, err := api.NewHandler(s, ingest, api.DefaultConfig(), logger.Default())
	require.NoError(t, err)
	srv, err := api.NewServer(h, api.DefaultConfig(), logger.Default())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, api.DefaultConfig().Validate())

	for name, mutate := range map[string]func(*api.Config){
		"listen":   func(c *api.Config) { c.Listen = "" },
		"shutdown": func(c *api.Config) { c.ShutdownTimeout = 0 },
		"factor":   func(c *api.Config) { c.MAFactor = 0 },
	} {
		cfg := api.DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
