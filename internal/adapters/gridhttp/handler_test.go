package gridhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forestcore/internal/adapters/export"
	"forestcore/internal/blob"
	"forestcore/pkg/domain"
)

// stubService records calls and returns canned answers so handler behavior can
// be exercised without a real store.
type stubService struct {
	fetchResult domain.PageResult
	fetchErr    error
	lastFetch   domain.PageRequest

	saveResult  domain.Row
	saveErr     error
	lastSaveOld domain.Row
	lastSaveNew domain.Row

	deleteErr       error
	lastDeleteID    int64
	lastDeleteScope domain.Scope

	report     domain.ValidationReport
	reportErr  error
	procedures []domain.ValidationProcedure
	runSummary domain.ValidationRunSummary
	runErr     error
	refreshErr error
}

func (s *stubService) FetchPage(_ context.Context, req domain.PageRequest) (domain.PageResult, error) {
	s.lastFetch = req
	return s.fetchResult, s.fetchErr
}

func (s *stubService) SaveRow(_ context.Context, _ domain.EntityType, _ domain.Scope, oldRow, newRow domain.Row) (domain.Row, error) {
	s.lastSaveOld = oldRow
	s.lastSaveNew = newRow
	return s.saveResult, s.saveErr
}

func (s *stubService) DeleteRow(_ context.Context, _ domain.EntityType, scope domain.Scope, entityID int64) error {
	s.lastDeleteID = entityID
	s.lastDeleteScope = scope
	return s.deleteErr
}

func (s *stubService) FetchValidationReport(context.Context, string) (domain.ValidationReport, error) {
	return s.report, s.reportErr
}

func (s *stubService) FetchValidationProcedures(context.Context) ([]domain.ValidationProcedure, error) {
	return s.procedures, nil
}

func (s *stubService) RefreshSummaryView(context.Context, string) error { return s.refreshErr }

func (s *stubService) RunValidation(context.Context, string) (domain.ValidationRunSummary, error) {
	return s.runSummary, s.runErr
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFetchBindsEntityFromPath(t *testing.T) {
	stub := &stubService{fetchResult: domain.PageResult{TotalCount: 3}}
	h := NewHandler(stub)

	req := domain.PageRequest{Entity: "spoofed", Page: 1, PageSize: 10, Scope: domain.Scope{SchemaName: "forest"}}
	rec := doRequest(t, h, http.MethodPost, "/api/v1/grid/attributes/fetch", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.lastFetch.Entity != domain.EntityAttribute {
		t.Fatalf("entity = %s, want path segment to win", stub.lastFetch.Entity)
	}
	if stub.lastFetch.Page != 1 || stub.lastFetch.Scope.SchemaName != "forest" {
		t.Fatalf("request body lost: %+v", stub.lastFetch)
	}

	var result domain.PageResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.TotalCount != 3 {
		t.Fatalf("total = %d, want 3", result.TotalCount)
	}
	// A nil window must still serialize as an empty array.
	if !strings.Contains(rec.Body.String(), `"output":[]`) {
		t.Fatalf("nil rows not normalized: %s", rec.Body.String())
	}
}

func TestFetchRejectsWrongMethod(t *testing.T) {
	h := NewHandler(&stubService{})
	rec := doRequest(t, h, http.MethodGet, "/api/v1/grid/attributes/fetch", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestSaveStatusTracksMethod(t *testing.T) {
	stub := &stubService{saveResult: domain.Row{ID: "4", EntityID: 9}}
	h := NewHandler(stub)
	body := saveRequest{
		OldRow: domain.Row{ID: "4", IsNew: true},
		NewRow: domain.Row{ID: "4", Fields: map[string]any{"code": "alive"}},
		Scope:  domain.Scope{SchemaName: "forest"},
	}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/grid/attributes/rows", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	var resp struct {
		Row domain.Row `json:"row"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode save response: %v", err)
	}
	if resp.Row.EntityID != 9 {
		t.Fatalf("saved row = %+v", resp.Row)
	}
	if !stub.lastSaveOld.IsNew || stub.lastSaveNew.Field("code") != "alive" {
		t.Fatalf("rows not forwarded: old %+v new %+v", stub.lastSaveOld, stub.lastSaveNew)
	}

	rec = doRequest(t, h, http.MethodPatch, "/api/v1/grid/attributes/rows", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}
}

func TestDeleteParsesScopeFromQuery(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub)

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/grid/census/rows/12?schema=forest&plotID=3&plotCensusNumber=2&quadratID=8", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.lastDeleteID != 12 {
		t.Fatalf("entity ID = %d, want 12", stub.lastDeleteID)
	}
	want := domain.Scope{SchemaName: "forest", PlotID: 3, PlotCensusNumber: 2, QuadratID: 8}
	if stub.lastDeleteScope != want {
		t.Fatalf("scope = %+v, want %+v", stub.lastDeleteScope, want)
	}

	rec = doRequest(t, h, http.MethodDelete, "/api/v1/grid/census/rows/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed id status = %d, want 400", rec.Code)
	}
}

func TestConflictMapsToDedicatedStatus(t *testing.T) {
	stub := &stubService{deleteErr: &domain.ConflictError{ReferencingTable: "cmattributes"}}
	h := NewHandler(stub)

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/grid/attributes/rows/5?schema=forest", nil)
	if rec.Code != StatusForeignKeyConflict {
		t.Fatalf("status = %d, want %d", rec.Code, StatusForeignKeyConflict)
	}
	var body struct {
		Error            string `json:"error"`
		ReferencingTable string `json:"referencingTable"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode conflict body: %v", err)
	}
	if body.ReferencingTable != "cmattributes" || !strings.Contains(body.Error, "cmattributes") {
		t.Fatalf("conflict body = %+v", body)
	}
}

func TestServiceErrorsMapToStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"status error passes through", domain.NewStatusError(http.StatusForbidden, "no"), http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"empty key", domain.ErrEmptyKey, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubService{deleteErr: tc.err})
			rec := doRequest(t, h, http.MethodDelete, "/api/v1/grid/attributes/rows/5?schema=forest", nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestValidationEndpoints(t *testing.T) {
	stub := &stubService{
		procedures: []domain.ValidationProcedure{{ValidationID: 1, Name: "ScreenMeasuredDiameterMinMax", Criteria: []string{"measuredDBH"}, Enabled: true}},
		runSummary: domain.ValidationRunSummary{TotalRows: 7, FailedRows: 2, Message: "screened 7 measurements, 2 flagged"},
	}
	h := NewHandler(stub)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/validations/report?schema=forest", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"failed":[]`) {
		t.Fatalf("empty report not normalized: %s", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/validations/procedures", nil)
	var procs struct {
		Procedures []domain.ValidationProcedure `json:"procedures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &procs); err != nil {
		t.Fatalf("decode procedures: %v", err)
	}
	if len(procs.Procedures) != 1 || procs.Procedures[0].ValidationID != 1 {
		t.Fatalf("procedures = %+v", procs.Procedures)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/validations/run?schema=forest", nil)
	var summary domain.ValidationRunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalRows != 7 || summary.FailedRows != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/validations/run", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("run with GET status = %d, want 405", rec.Code)
	}
}

func TestRefreshViewsEndpoint(t *testing.T) {
	h := NewHandler(&stubService{})
	rec := doRequest(t, h, http.MethodPost, "/api/v1/refreshviews?schema=forest", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"refreshed":true`) {
		t.Fatalf("refresh response = %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRoutes(t *testing.T) {
	h := NewHandler(&stubService{})
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/grid/attributes/other", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown grid endpoint status = %d", rec.Code)
	}
}

func TestExportEndpointStoresArtifacts(t *testing.T) {
	stub := &stubService{fetchResult: domain.PageResult{
		Rows: []domain.Row{
			{ID: "1", EntityID: 10, Fields: map[string]any{"code": "alive"}},
			{ID: "2", EntityID: 11, Fields: map[string]any{"code": "dead"}},
		},
		TotalCount: 2,
	}}
	h := NewHandler(stub)
	blobs := blob.NewMemory()
	h.Exporter = export.NewExporter(stub, blobs)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/grid/attributes/export?format=json,csv",
		map[string]any{"scope": map[string]any{"schema": "forest"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Artifacts []export.Artifact `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Artifacts) != 2 {
		t.Fatalf("expected two artifacts, got %+v", resp.Artifacts)
	}
	for _, a := range resp.Artifacts {
		if a.RowCount != 2 || a.Key == "" {
			t.Fatalf("artifact incomplete: %+v", a)
		}
		if _, _, err := blobs.Get(context.Background(), a.Key); err != nil {
			t.Fatalf("artifact %s not stored: %v", a.Key, err)
		}
	}
	if stub.lastFetch.Entity != domain.EntityAttribute {
		t.Fatalf("entity not bound from path: %+v", stub.lastFetch)
	}
}

func TestExportEndpointRejectsBadRequests(t *testing.T) {
	stub := &stubService{}
	h := NewHandler(stub)

	// Unconfigured exporter.
	rec := doRequest(t, h, http.MethodPost, "/api/v1/grid/attributes/export", map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured export status = %d", rec.Code)
	}

	h.Exporter = export.NewExporter(stub, blob.NewMemory())
	rec = doRequest(t, h, http.MethodPost, "/api/v1/grid/attributes/export?format=parquet", map[string]any{})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "parquet") {
		t.Fatalf("unknown format: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/grid/attributes/export", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET export status = %d", rec.Code)
	}
}
