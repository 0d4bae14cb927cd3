package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fundlens/fundlens/internal/modules/dataset"
	"github.com/fundlens/fundlens/internal/modules/formula"
	"github.com/fundlens/fundlens/internal/modules/platform"
	"github.com/fundlens/fundlens/internal/modules/portfolio"
	"github.com/fundlens/fundlens/internal/modules/scoring"
	"github.com/fundlens/fundlens/internal/modules/screens"
	"github.com/fundlens/fundlens/internal/modules/snapshots"
	"github.com/fundlens/fundlens/internal/modules/strategy"
	"github.com/fundlens/fundlens/internal/modules/workspace"
)

const maxUploadBytes = 64 << 20

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "fundlens",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors onto HTTP statuses with a stable error kind
// the frontend can switch on.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	var (
		missingCols *dataset.MissingColumnsError
		nonNumeric  *dataset.NonNumericColumnError
		malformed   *dataset.MalformedInputError
		unknownID   *formula.UnknownIdentifierError
		syntaxErr   *formula.SyntaxError
		evalErr     *formula.EvalError
		noPlatform  *platform.NoPlatformColumnError
	)

	switch {
	case errors.As(err, &missingCols):
		status, kind = http.StatusBadRequest, "missing_columns"
	case errors.As(err, &nonNumeric):
		status, kind = http.StatusBadRequest, "non_numeric_column"
	case errors.As(err, &malformed):
		status, kind = http.StatusBadRequest, "malformed_input"
	case errors.Is(err, dataset.ErrEmptyInput):
		status, kind = http.StatusBadRequest, "empty_input"
	case errors.As(err, &unknownID):
		status, kind = http.StatusBadRequest, "unknown_identifier"
	case errors.As(err, &syntaxErr):
		status, kind = http.StatusBadRequest, "invalid_syntax"
	case errors.As(err, &evalErr):
		status, kind = http.StatusBadRequest, "evaluation_error"
	case errors.As(err, &noPlatform):
		status, kind = http.StatusBadRequest, "no_platform_column"
	case errors.Is(err, workspace.ErrNoDataset):
		status, kind = http.StatusConflict, "no_dataset"
	case errors.Is(err, snapshots.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "kind": kind})
}

// uploadReaders collects the CSV payloads of a request: multipart file parts
// when present, otherwise the raw body.
func uploadReaders(r *http.Request) ([]io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return []io.Reader{http.MaxBytesReader(nil, r.Body, maxUploadBytes)}, func() {}, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, func() {}, &dataset.MalformedInputError{Err: err}
	}

	var readers []io.Reader
	var closers []io.Closer
	for _, headers := range r.MultipartForm.File {
		for _, hdr := range headers {
			f, err := hdr.Open()
			if err != nil {
				return nil, func() {}, fmt.Errorf("failed to open uploaded file %q: %w", hdr.Filename, err)
			}
			readers = append(readers, f)
			closers = append(closers, f)
		}
	}
	cleanup := func() {
		for _, c := range closers {
			_ = c.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}
	if len(readers) == 0 {
		cleanup()
		return nil, func() {}, dataset.ErrEmptyInput
	}
	return readers, cleanup, nil
}

// handleLoadDataset handles POST /api/dataset
func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	readers, cleanup, err := uploadReaders(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	summary, err := s.workspace.Load(readers)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleValidateDataset handles POST /api/dataset/validate
func (s *Server) handleValidateDataset(w http.ResponseWriter, r *http.Request) {
	readers, cleanup, err := uploadReaders(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cleanup()

	for _, reader := range readers {
		if err := s.workspace.Validate(reader); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

// handleWorkspaceSummary handles GET /api/workspace
func (s *Server) handleWorkspaceSummary(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.workspace.Summarize())
}

// handleWorkspaceTable handles GET /api/workspace/table
func (s *Server) handleWorkspaceTable(w http.ResponseWriter, r *http.Request) {
	table, err := s.workspace.Working()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tableJSON(table, table.CanonicalOrder(nil)))
}

// handleWorkspaceScored handles GET /api/workspace/scored
func (s *Server) handleWorkspaceScored(w http.ResponseWriter, r *http.Request) {
	scored, err := s.workspace.Score()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tableJSON(scored, scored.CanonicalOrder(scoring.DerivedColumns)))
}

// handleCategoryStats handles GET /api/workspace/categories
func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.workspace.CategoryStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sanitizeStats(stats))
}

// handleWorkspaceHistory handles GET /api/workspace/history
func (s *Server) handleWorkspaceHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.workspace.History())
}

// handleExport handles GET /api/workspace/export?scored=true
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	scored := r.URL.Query().Get("scored") == "true"

	name := "working_set.csv"
	if scored {
		name = "scored_funds.csv"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	if err := s.workspace.ExportCSV(w, scored); err != nil {
		// Headers may already be out; log rather than rewrite the status.
		s.log.Error().Err(err).Msg("CSV export failed")
	}
}

type formulaRequest struct {
	Formula string `json:"formula"`
}

// handleApplyFormula handles POST /api/workspace/filter
func (s *Server) handleApplyFormula(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Formula) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "formula is required"})
		return
	}

	summary, err := s.workspace.ApplyFormula(req.Formula)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleApplyPreset handles POST /api/workspace/preset/{id}
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := strategy.Find(id); !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown strategy preset %q", id)})
		return
	}

	summary, err := s.workspace.ApplyPreset(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type platformFilterRequest struct {
	Codes     []string `json:"codes,omitempty"`
	CodeSetID string   `json:"code_set_id,omitempty"`
}

// handleApplyPlatform handles POST /api/workspace/platform
func (s *Server) handleApplyPlatform(w http.ResponseWriter, r *http.Request) {
	var req platformFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	codes := req.Codes
	if req.CodeSetID != "" {
		set, err := s.screensRepo.GetCodeSet(req.CodeSetID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if set == nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "code set not found"})
			return
		}
		codes = append(codes, set.Codes...)
	}

	summary, err := s.workspace.ApplyPlatformCodes(codes)
	var noPlatform *platform.NoPlatformColumnError
	if errors.As(err, &noPlatform) {
		// Missing code column is a warning: the working set is untouched.
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"summary": summary,
			"warning": noPlatform.Error(),
		})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"summary": summary})
}

// handleReset handles POST /api/workspace/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	summary, err := s.workspace.Reset()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleListStrategies handles GET /api/strategies
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, strategy.Presets())
}

type screenRequest struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
}

// handleListScreens handles GET /api/screens
func (s *Server) handleListScreens(w http.ResponseWriter, r *http.Request) {
	list, err := s.screensRepo.ListScreens()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []screens.SavedScreen{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleSaveScreen handles POST /api/screens
func (s *Server) handleSaveScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || strings.TrimSpace(req.Formula) == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and formula are required"})
		return
	}

	saved, err := s.screensRepo.SaveScreen(req.Name, req.Formula)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, saved)
}

// handleGetScreen handles GET /api/screens/{id}
func (s *Server) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	screen, err := s.screensRepo.GetScreen(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if screen == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "screen not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, screen)
}

// handleUpdateScreen handles PUT /api/screens/{id}
func (s *Server) handleUpdateScreen(w http.ResponseWriter, r *http.Request) {
	var req screenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.screensRepo.UpdateScreen(id, req.Name, req.Formula); err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "screen not found"})
		return
	}
	screen, err := s.screensRepo.GetScreen(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, screen)
}

// handleDeleteScreen handles DELETE /api/screens/{id}
func (s *Server) handleDeleteScreen(w http.ResponseWriter, r *http.Request) {
	if err := s.screensRepo.DeleteScreen(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleApplyScreen handles POST /api/screens/{id}/apply
func (s *Server) handleApplyScreen(w http.ResponseWriter, r *http.Request) {
	screen, err := s.screensRepo.GetScreen(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if screen == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "screen not found"})
		return
	}

	summary, err := s.workspace.ApplyFormula(screen.Formula)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

type extractRequest struct {
	Pages  []string `json:"pages"`
	Text   string   `json:"text,omitempty"`
	SaveAs string   `json:"save_as,omitempty"`
	Source string   `json:"source,omitempty"`
}

// handleExtractCodes handles POST /api/platform/extract
func (s *Server) handleExtractCodes(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	pages := req.Pages
	if len(pages) == 0 && req.Text != "" {
		pages = []string{req.Text}
	}
	if len(pages) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pages or text is required"})
		return
	}

	perPage, all := s.extractor.ExtractPages(pages)

	response := map[string]interface{}{
		"pages": perPage,
		"codes": all,
		"count": len(all),
	}
	if req.SaveAs != "" {
		set, err := s.screensRepo.SaveCodeSet(req.SaveAs, req.Source, all)
		if err != nil {
			s.writeError(w, err)
			return
		}
		response["code_set"] = set
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleListCodeSets handles GET /api/platform/code-sets
func (s *Server) handleListCodeSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.screensRepo.ListCodeSets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sets)
}

// handleDeleteCodeSet handles DELETE /api/platform/code-sets/{id}
func (s *Server) handleDeleteCodeSet(w http.ResponseWriter, r *http.Request) {
	if err := s.screensRepo.DeleteCodeSet(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleListSnapshots handles GET /api/snapshots
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.snapshots.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

// handleSaveSnapshot handles POST /api/snapshots
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	table, err := s.workspace.Working()
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.snapshots.Save(req.Name, table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, snap)
}

// handleRestoreSnapshot handles POST /api/snapshots/{id}/restore
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	table, snap, err := s.snapshots.Load(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.workspace.SetDataset(table)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": snap,
		"summary":  s.workspace.Summarize(),
	})
}

// handleDeleteSnapshot handles DELETE /api/snapshots/{id}
func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshots.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleListPortfolio handles GET /api/portfolio
func (s *Server) handleListPortfolio(w http.ResponseWriter, r *http.Request) {
	funds, err := s.portfolioSvc.Repo().List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"funds":            funds,
		"total_allocation": portfolio.TotalAllocation(funds),
	})
}

// handleAddPortfolioFund handles POST /api/portfolio
func (s *Server) handleAddPortfolioFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIRCode string `json:"apir_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIRCode == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "apir_code is required"})
		return
	}

	table, err := s.workspace.Dataset()
	if err != nil {
		s.writeError(w, err)
		return
	}
	fund, err := s.portfolioSvc.AddFromTable(table, req.APIRCode)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, fund)
}

type portfolioUpdateRequest struct {
	Allocation *float64 `json:"allocation,omitempty"`
	AssetClass *string  `json:"asset_class,omitempty"`
	Comments   *string  `json:"comments,omitempty"`
}

// handleUpdatePortfolioFund handles PUT /api/portfolio/{apir}
func (s *Server) handleUpdatePortfolioFund(w http.ResponseWriter, r *http.Request) {
	var req portfolioUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	apir := chi.URLParam(r, "apir")
	repo := s.portfolioSvc.Repo()

	if req.Allocation != nil {
		if err := repo.SetAllocation(apir, req.Allocation); err != nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "fund not in portfolio"})
			return
		}
	}
	if req.AssetClass != nil {
		if err := repo.SetAssetClass(apir, *req.AssetClass); err != nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "fund not in portfolio"})
			return
		}
	}
	if req.Comments != nil {
		if err := repo.SetComments(apir, *req.Comments); err != nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "fund not in portfolio"})
			return
		}
	}

	fund, err := repo.Get(apir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fund)
}

// handleRemovePortfolioFund handles DELETE /api/portfolio/{apir}
func (s *Server) handleRemovePortfolioFund(w http.ResponseWriter, r *http.Request) {
	if err := s.portfolioSvc.Repo().Remove(chi.URLParam(r, "apir")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handlePortfolioMetrics handles GET /api/portfolio/metrics
func (s *Server) handlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	funds, err := s.portfolioSvc.Repo().List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	table, err := s.workspace.Dataset()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.portfolioSvc.WeightedMetrics(funds, table))
}

// handlePortfolioAllocation handles GET /api/portfolio/allocation?profile=...
func (s *Server) handlePortfolioAllocation(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = "Balanced (40/60)"
	}

	funds, err := s.portfolioSvc.Repo().List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	comparison, err := s.portfolioSvc.CompareAllocation(funds, profile)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"profile":          profile,
		"classes":          comparison,
		"total_allocation": portfolio.TotalAllocation(funds),
	})
}

// handleListProfiles handles GET /api/portfolio/profiles
func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, portfolio.Profiles())
}

// tableJSON converts a table to a JSON-friendly structure. Missing numeric
// values become nulls.
func tableJSON(t *dataset.Table, order []string) map[string]interface{} {
	rows := make([]map[string]interface{}, t.NumRows())
	for i := range rows {
		row := make(map[string]interface{}, len(order))
		for _, name := range order {
			col, ok := t.Column(name)
			if !ok {
				continue
			}
			if col.Kind == dataset.KindString {
				row[name] = col.Strs[i]
			} else if math.IsNaN(col.Nums[i]) {
				row[name] = nil
			} else {
				row[name] = col.Nums[i]
			}
		}
		rows[i] = row
	}
	return map[string]interface{}{
		"columns": order,
		"rows":    rows,
		"count":   t.NumRows(),
	}
}

// sanitizeStats replaces NaN aggregates with nulls for JSON encoding.
func sanitizeStats(stats []scoring.CategoryStats) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(stats))
	for _, cs := range stats {
		out = append(out, map[string]interface{}{
			"category":               cs.Category,
			"count":                  cs.Count,
			"avg_beta":               nanToNil(cs.AvgBeta),
			"avg_sharpe":             nanToNil(cs.AvgSharpe),
			"avg_std_dev":            nanToNil(cs.AvgStdDev),
			"return_75th_percentile": nanToNil(cs.Return75th),
		})
	}
	return out
}

func nanToNil(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
