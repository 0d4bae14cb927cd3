package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlens/fundlens/internal/config"
	"github.com/fundlens/fundlens/internal/modules/snapshots"
	"github.com/fundlens/fundlens/internal/modules/workspace"
	"github.com/fundlens/fundlens/internal/testutil"
)

const sampleCSV = `Name,APIR Code,Morningstar Category,3 Years Annualised (%),Investment Management Fee(%),Equity StyleBox™,Morningstar Rating,3 Year Beta,3 Year Standard Deviation,3 Year Sharpe Ratio
Alpha,ABC0001AU,Equity Australia Large Blend,12,0.2,Large Blend,5,0.8,8,1.2
Bravo,XYZ123AU,Equity Australia Large Blend,8,0.6,Large Value,4,1.2,14,0.6
Charlie,QRS987AU,Global Bond,4,1.0,Large Growth,3,0.9,9,0.3
Delta,LMN456AU,Global Bond,10,0.8,Large Blend,4,1.0,11,0.9
`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	screensDB, cleanupScreens := testutil.NewTestDB(t, "screens")
	t.Cleanup(cleanupScreens)
	portfolioDB, cleanupPortfolio := testutil.NewTestDB(t, "portfolio")
	t.Cleanup(cleanupPortfolio)

	store, err := snapshots.NewStore(t.TempDir())
	require.NoError(t, err)

	return New(Config{
		Log:         zerolog.Nop(),
		Config:      &config.Config{DataDir: t.TempDir()},
		ScreensDB:   screensDB,
		PortfolioDB: portfolioDB,
		Workspace:   workspace.New(),
		Snapshots:   store,
		Port:        0,
		DevMode:     true,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func loadSample(t *testing.T, s *Server) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "funds.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestLoadValidateAndFilterFlow(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	var summary workspace.Summary
	decode(t, doJSON(t, s, http.MethodGet, "/api/workspace", nil), &summary)
	assert.True(t, summary.Loaded)
	assert.Equal(t, 4, summary.TotalRows)

	rec := doJSON(t, s, http.MethodPost, "/api/workspace/filter", map[string]string{"formula": "return > 5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &summary)
	assert.Equal(t, 3, summary.WorkingRows)

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &summary)
	assert.Equal(t, 4, summary.WorkingRows)
}

func TestValidateDataset_ReportsTypedErrors(t *testing.T) {
	s := newTestServer(t)

	bad := strings.Replace(sampleCSV, "12,0.2", "twelve,0.2", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/dataset/validate", strings.NewReader(bad))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "non_numeric_column", resp["kind"])
}

func TestFilterErrors(t *testing.T) {
	s := newTestServer(t)

	// No dataset loaded yet.
	rec := doJSON(t, s, http.MethodPost, "/api/workspace/filter", map[string]string{"formula": "return > 5"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	loadSample(t, s)

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/filter", map[string]string{"formula": "momentum > 5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "unknown_identifier", resp["kind"])

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/filter", map[string]string{"formula": "return >"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "invalid_syntax", resp["kind"])
}

func TestPresetAndStrategies(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var presets []map[string]interface{}
	decode(t, rec, &presets)
	assert.Len(t, presets, 5)

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/preset/top-return", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/preset/bogus", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoredAndCategories(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/workspace/scored", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var table struct {
		Columns []string                 `json:"columns"`
		Rows    []map[string]interface{} `json:"rows"`
	}
	decode(t, rec, &table)
	assert.Contains(t, table.Columns, "Composite Score")
	assert.Len(t, table.Rows, 4)

	rec = doJSON(t, s, http.MethodGet, "/api/workspace/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []map[string]interface{}
	decode(t, rec, &stats)
	assert.Len(t, stats, 2)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodGet, "/api/workspace/export?scored=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Body.String(), "Composite Score")
}

func TestScreenLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/screens", map[string]string{
		"name":    "growth picks",
		"formula": "return > 5 and expense_ratio < 0.9",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var screen map[string]interface{}
	decode(t, rec, &screen)
	id := screen["id"].(string)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/screens/%s/apply", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary workspace.Summary
	decode(t, rec, &summary)
	assert.Equal(t, 3, summary.WorkingRows)

	rec = doJSON(t, s, http.MethodDelete, "/api/screens/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/screens/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlatformExtractAndFilter(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/platform/extract", map[string]interface{}{
		"pages":   []string{"Approved: ABC0001AU and QRS987AU"},
		"save_as": "approved list",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var extract struct {
		Codes   []string               `json:"codes"`
		CodeSet map[string]interface{} `json:"code_set"`
	}
	decode(t, rec, &extract)
	assert.Equal(t, []string{"ABC0001AU", "QRS987AU"}, extract.Codes)
	require.NotNil(t, extract.CodeSet)

	rec = doJSON(t, s, http.MethodPost, "/api/workspace/platform", map[string]interface{}{
		"code_set_id": extract.CodeSet["id"],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Summary workspace.Summary `json:"summary"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Summary.WorkingRows)
}

func TestSnapshotSaveRestore(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	// Narrow, snapshot, narrow again, then restore.
	rec := doJSON(t, s, http.MethodPost, "/api/workspace/filter", map[string]string{"formula": "return > 5"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/snapshots", map[string]string{"name": "after screen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var snap map[string]interface{}
	decode(t, rec, &snap)

	rec = doJSON(t, s, http.MethodPost, fmt.Sprintf("/api/snapshots/%s/restore", snap["id"]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var restore struct {
		Summary workspace.Summary `json:"summary"`
	}
	decode(t, rec, &restore)
	assert.Equal(t, 3, restore.Summary.TotalRows)

	rec = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/snapshots/%s", snap["id"]), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/snapshots/missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPortfolioOverHTTP(t *testing.T) {
	s := newTestServer(t)
	loadSample(t, s)

	rec := doJSON(t, s, http.MethodPost, "/api/portfolio", map[string]string{"apir_code": "ABC0001AU"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var fund map[string]interface{}
	decode(t, rec, &fund)
	assert.Equal(t, "Australian Equities", fund["asset_class"])

	rec = doJSON(t, s, http.MethodPut, "/api/portfolio/ABC0001AU", map[string]interface{}{
		"allocation": 60,
		"comments":   "core growth",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/api/portfolio/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics map[string]float64
	decode(t, rec, &metrics)
	assert.InDelta(t, 60, metrics["total_allocation"], 1e-9)
	assert.InDelta(t, 0.6*12, metrics["return"], 1e-9)

	rec = doJSON(t, s, http.MethodGet, "/api/portfolio/allocation?profile=Balanced+(40/60)", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/api/portfolio/ABC0001AU", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
