package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"forestcore/internal/blob"
	"forestcore/pkg/domain"
)

// pagedSource serves a fixed data set one window at a time and records how
// many fetches the exporter issued.
type pagedSource struct {
	rows    []domain.Row
	fetches []domain.PageRequest
}

func (s *pagedSource) FetchPage(_ context.Context, req domain.PageRequest) (domain.PageResult, error) {
	s.fetches = append(s.fetches, req)
	start := req.Page * req.PageSize
	if start >= len(s.rows) {
		return domain.PageResult{Rows: []domain.Row{}, TotalCount: len(s.rows)}, nil
	}
	end := start + req.PageSize
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return domain.PageResult{Rows: s.rows[start:end], TotalCount: len(s.rows)}, nil
}

func (s *pagedSource) SaveRow(context.Context, domain.EntityType, domain.Scope, domain.Row, domain.Row) (domain.Row, error) {
	return domain.Row{}, nil
}

func (s *pagedSource) DeleteRow(context.Context, domain.EntityType, domain.Scope, int64) error {
	return nil
}

func (s *pagedSource) FetchValidationReport(context.Context, string) (domain.ValidationReport, error) {
	return domain.ValidationReport{}, nil
}

func (s *pagedSource) FetchValidationProcedures(context.Context) ([]domain.ValidationProcedure, error) {
	return nil, nil
}

func (s *pagedSource) RefreshSummaryView(context.Context, string) error { return nil }

func attributeRows(n int) []domain.Row {
	rows := make([]domain.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.Row{
			ID:       string(rune('a' + i)),
			EntityID: int64(i + 1),
			Fields: map[string]any{
				"attributeID": int64(i + 1),
				"code":        "attr-" + string(rune('a'+i)),
				"description": "stem condition",
				"status":      "alive",
			},
		})
	}
	return rows
}

func newExporter(t *testing.T, source domain.DataSource) (*Exporter, blob.Store) {
	t.Helper()
	blobs := blob.NewMemory()
	exporter := NewExporter(source, blobs)
	exporter.SetNowFunc(func() time.Time {
		return time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	})
	return exporter, blobs
}

func readBlob(t *testing.T, blobs blob.Store, key string) []byte {
	t.Helper()
	_, rc, err := blobs.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get blob %s: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob %s: %v", key, err)
	}
	return data
}

func TestExportPagesThroughFullResultSet(t *testing.T) {
	source := &pagedSource{rows: attributeRows(12)}
	exporter, blobs := newExporter(t, source)
	exporter.PageSize = 5

	req := domain.PageRequest{Entity: domain.EntityAttribute, Scope: domain.Scope{SchemaName: "forest"}}
	artifacts, err := exporter.ExportGrid(context.Background(), req, FormatJSON)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	if len(source.fetches) != 3 {
		t.Fatalf("fetches = %d, want 3 pages of 5", len(source.fetches))
	}
	for i, fetch := range source.fetches {
		if fetch.Page != i || fetch.PageSize != 5 {
			t.Fatalf("fetch %d = page %d size %d", i, fetch.Page, fetch.PageSize)
		}
	}

	artifact := artifacts[0]
	if artifact.RowCount != 12 || artifact.Format != FormatJSON || artifact.ContentType != "application/json" {
		t.Fatalf("artifact = %+v", artifact)
	}
	want := "exports/forest/attributes-20240601T123000Z.json"
	if artifact.Key != want {
		t.Fatalf("key = %q, want %q", artifact.Key, want)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(readBlob(t, blobs, artifact.Key), &decoded); err != nil {
		t.Fatalf("decode exported JSON: %v", err)
	}
	if len(decoded) != 12 || decoded[0]["code"] != "attr-a" {
		t.Fatalf("exported payload = %d rows, first %+v", len(decoded), decoded[0])
	}
}

func TestExportCSVUsesDeclaredColumnOrder(t *testing.T) {
	source := &pagedSource{rows: attributeRows(2)}
	exporter, blobs := newExporter(t, source)

	req := domain.PageRequest{Entity: domain.EntityAttribute, Scope: domain.Scope{SchemaName: "forest"}}
	artifacts, err := exporter.ExportGrid(context.Background(), req, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	artifact := artifacts[0]
	if artifact.ContentType != "text/csv" || !strings.HasSuffix(artifact.Key, ".csv") {
		t.Fatalf("artifact = %+v", artifact)
	}

	records, err := csv.NewReader(strings.NewReader(string(readBlob(t, blobs, artifact.Key)))).ReadAll()
	if err != nil {
		t.Fatalf("parse exported CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header plus 2 rows", len(records))
	}
	wantHeader := []string{"attributeID", "code", "description", "status"}
	for i, column := range wantHeader {
		if records[0][i] != column {
			t.Fatalf("header = %v, want %v", records[0], wantHeader)
		}
	}
	if records[1][1] != "attr-a" || records[2][1] != "attr-b" {
		t.Fatalf("row order broken: %v", records)
	}
}

func TestExportMultipleFormatsShareSnapshot(t *testing.T) {
	source := &pagedSource{rows: attributeRows(3)}
	exporter, _ := newExporter(t, source)

	req := domain.PageRequest{Entity: domain.EntityAttribute, Scope: domain.Scope{SchemaName: "forest"}}
	artifacts, err := exporter.ExportGrid(context.Background(), req, FormatJSON, FormatCSV)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	if len(source.fetches) != 1 {
		t.Fatalf("fetches = %d, want one shared collection pass", len(source.fetches))
	}
	if artifacts[0].RowCount != 3 || artifacts[1].RowCount != 3 {
		t.Fatalf("row counts = %d, %d", artifacts[0].RowCount, artifacts[1].RowCount)
	}
	if artifacts[0].Key == artifacts[1].Key {
		t.Fatalf("formats share a key: %q", artifacts[0].Key)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	exporter, _ := newExporter(t, &pagedSource{rows: attributeRows(1)})
	req := domain.PageRequest{Entity: domain.EntityAttribute, Scope: domain.Scope{SchemaName: "forest"}}
	if _, err := exporter.ExportGrid(context.Background(), req, Format("parquet")); err == nil {
		t.Fatalf("unknown format accepted")
	}
}

func TestExportDefaultsToJSON(t *testing.T) {
	exporter, _ := newExporter(t, &pagedSource{rows: attributeRows(1)})
	req := domain.PageRequest{Entity: domain.EntityAttribute, Scope: domain.Scope{SchemaName: "forest"}}
	artifacts, err := exporter.ExportGrid(context.Background(), req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Format != FormatJSON {
		t.Fatalf("artifacts = %+v", artifacts)
	}
}
