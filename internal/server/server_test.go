package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/actus/internal/actor"
	"github.com/alanyoungcy/actus/internal/conventions"
	"github.com/alanyoungcy/actus/internal/domain"
	"github.com/alanyoungcy/actus/internal/fixed"
	"github.com/alanyoungcy/actus/internal/server/handler"
	"github.com/alanyoungcy/actus/internal/service"
	"github.com/alanyoungcy/actus/internal/store/memory"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var owners = domain.Ownership{
	CreatorObligor:          common.HexToAddress("0xa1"),
	CreatorBeneficiary:      common.HexToAddress("0xa2"),
	CounterpartyObligor:     common.HexToAddress("0xb1"),
	CounterpartyBeneficiary: common.HexToAddress("0xb2"),
}

func loanTerms() domain.Terms {
	return domain.Terms{
		ContractType:        domain.ContractPAM,
		ContractRole:        domain.RoleRPA,
		Currency:            "USD",
		DayCountConvention:  conventions.DayCountA365,
		StatusDate:          date(2023, 12, 15),
		InitialExchangeDate: date(2024, 1, 1),
		MaturityDate:        date(2025, 1, 1),
		NotionalPrincipal:   fixed.MustParse("1000000"),
		NominalInterestRate: fixed.MustParse("0.05"),
		CycleOfInterestPayment: conventions.Cycle{
			Period: conventions.Period{Interval: 1, Unit: conventions.UnitQuarter},
			Stub:   conventions.StubLong,
			IsSet:  true,
		},
		GracePeriod:       conventions.Period{Interval: 5, Unit: conventions.UnitDay},
		DelinquencyPeriod: conventions.Period{Interval: 30, Unit: conventions.UnitDay},
	}
}

type testAPI struct {
	h   http.Handler
	now time.Time
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	api := &testAPI{now: date(2023, 12, 20)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := memory.NewRegistry()
	ledger := memory.NewLedger()
	data := memory.NewDataProvider()
	a := actor.New(actor.Deps{
		Registry:   registry,
		Data:       data,
		Settlement: ledger,
		Locks:      memory.NewLockManager(),
		Bus:        memory.NewSignalBus(),
	}, actor.DefaultConfig(), logger, actor.WithClock(func() time.Time { return api.now }))
	svc := service.NewAssetService(a, registry, ledger, data, nil, 10*365*24*time.Hour, logger)

	srv := NewServer(cfg, Handlers{
		Health:      handler.NewHealthHandler("memory", nil, logger),
		Assets:      handler.NewAssetHandler(svc, logger),
		Data:        handler.NewDataHandler(svc, logger),
		Settlements: handler.NewSettlementHandler(svc, logger),
		Schedule:    handler.NewScheduleHandler(svc, logger),
	}, nil, nil, logger)
	api.h = srv.Handler()
	return api
}

func (api *testAPI) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)
	return rec
}

func TestAssetLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	create := map[string]any{"terms": loanTerms(), "ownership": owners}
	rec = api.do(t, http.MethodPost, "/api/assets", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var asset domain.Asset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asset))
	assert.Len(t, asset.Schedule, 6)
	base := "/api/assets/" + asset.ID.Hex()

	rec = api.do(t, http.MethodPost, "/api/assets", create)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, base, nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/assets/0x12", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/assets/"+common.Hash{1}.Hex(), nil).Code)

	// IED falls on 2024-01-01.
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, base+"/progress", nil).Code)

	api.now = date(2024, 1, 1)
	from, to := owners.Parties(fixed.MustParse("-1"))
	rec = api.do(t, http.MethodPost, "/api/settlements", map[string]any{
		"asset_id": asset.ID,
		"event":    asset.Schedule[0],
		"from":     from,
		"to":       to,
		"amount":   "1000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, base+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res actor.ProgressResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Settled)
	assert.Equal(t, domain.EventIED, res.Event.Type)

	rec = api.do(t, http.MethodPost, base+"/progress-with", map[string]any{"type": "IP", "time": "2024-07-01T00:00:00Z"})
	assert.Equal(t, http.StatusConflict, rec.Code, "the April coupon comes first")

	rec = api.do(t, http.MethodPost, base+"/progress-with", map[string]any{"type": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, base+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view service.ScheduleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Cursor)
	assert.Len(t, view.Settled, 1)

	rec = api.do(t, http.MethodGet, "/api/assets?performance=PF", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Assets []domain.AssetSummary `json:"assets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Assets, 1)

	rec = api.do(t, http.MethodGet, base+"/payments", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDataPointsAndPreview(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, http.MethodPost, "/api/datapoints", map[string]any{
		"market_object_code": "SOFR",
		"timestamp":          "2024-02-01T00:00:00Z",
		"value":              "0.06",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/datapoints", map[string]any{"value": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/datapoints", map[string]any{
		"market_object_code": "SOFR",
		"timestamp":          "2024-03-01T00:00:00Z",
		"value":              "0.061",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/datapoints/SOFR?from=2024-01-01T00:00:00Z&to=2024-12-31T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var history struct {
		Count  int                `json:"count"`
		Points []domain.DataPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Equal(t, 2, history.Count)
	assert.Equal(t, date(2024, 2, 1), history.Points[0].Timestamp)
	assert.Equal(t, fixed.MustParse("0.06"), history.Points[0].Value)
	assert.Equal(t, date(2024, 3, 1), history.Points[1].Timestamp)

	rec = api.do(t, http.MethodGet, "/api/datapoints/SOFR?from=2024-02-15T00:00:00Z&to=2024-12-31T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Equal(t, 1, history.Count)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/api/datapoints/SOFR?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		api.do(t, http.MethodGet, "/api/datapoints/SOFR?from=2024-12-31T00:00:00Z&to=2024-01-01T00:00:00Z", nil).Code)

	rec = api.do(t, http.MethodPost, "/api/schedule/preview", map[string]any{"terms": loanTerms()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 6, preview.Count)

	rec = api.do(t, http.MethodPost, "/api/schedule/preview", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	api := newTestAPI(t, Config{APIKey: "k"})
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(t, http.MethodGet, "/api/assets", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/assets", nil, "X-API-Key", "k").Code)
}
