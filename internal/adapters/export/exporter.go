// Package export renders grid snapshots to downloadable artifacts and stores
// them in a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"forestcore/internal/blob"
	"forestcore/pkg/domain"
)

// Format identifies a rendered artifact format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Artifact captures a stored grid export.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	RowCount    int       `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exporter renders full filtered grid snapshots. It pages through the data
// source so exports see the same filtering and sorting the grid does.
type Exporter struct {
	source domain.DataSource
	blobs  blob.Store
	nowFn  func() time.Time

	// PageSize bounds each fetch while collecting the snapshot.
	PageSize int
}

// NewExporter constructs an exporter over the given data source and blob store.
func NewExporter(source domain.DataSource, blobs blob.Store) *Exporter {
	return &Exporter{source: source, blobs: blobs, nowFn: time.Now, PageSize: 500}
}

// SetNowFunc overrides the timestamp source for deterministic tests.
func (e *Exporter) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

// ExportGrid collects every row matching the request's filter and scope and
// stores one artifact per requested format. The request's page and page size
// are ignored; the snapshot always covers the full result set.
func (e *Exporter) ExportGrid(ctx context.Context, req domain.PageRequest, formats ...Format) ([]Artifact, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	rows, err := e.collect(ctx, req)
	if err != nil {
		return nil, err
	}
	stamp := e.nowFn().UTC()
	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, contentType, err := render(req.Entity, rows, format)
		if err != nil {
			return nil, err
		}
		key := artifactKey(req, format, stamp)
		info, err := e.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata: map[string]string{
				"entity": string(req.Entity),
				"schema": req.Scope.SchemaName,
				"format": string(format),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("store %s artifact: %w", format, err)
		}
		artifacts = append(artifacts, Artifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			RowCount:    len(rows),
			CreatedAt:   stamp,
		})
	}
	return artifacts, nil
}

func (e *Exporter) collect(ctx context.Context, req domain.PageRequest) ([]domain.Row, error) {
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	var rows []domain.Row
	for page := 0; ; page++ {
		fetch := req
		fetch.Page = page
		fetch.PageSize = pageSize
		result, err := e.source.FetchPage(ctx, fetch)
		if err != nil {
			return nil, err
		}
		rows = append(rows, result.Rows...)
		if len(rows) >= result.TotalCount || len(result.Rows) == 0 {
			return rows, nil
		}
	}
}

func artifactKey(req domain.PageRequest, format Format, stamp time.Time) string {
	schema := req.Scope.SchemaName
	if schema == "" {
		schema = "default"
	}
	return fmt.Sprintf("exports/%s/%s-%s.%s", schema, req.Entity, stamp.Format("20060102T150405Z"), format)
}

func render(entity domain.EntityType, rows []domain.Row, format Format) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.MarshalIndent(rowsToMaps(rows), "", "  ")
		if err != nil {
			return nil, "", err
		}
		return payload, "application/json", nil
	case FormatCSV:
		payload, err := renderCSV(entity, rows)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

func rowsToMaps(rows []domain.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]any, len(row.Fields))
		for k, v := range row.Fields {
			fields[k] = v
		}
		out = append(out, fields)
	}
	return out
}

func renderCSV(entity domain.EntityType, rows []domain.Row) ([]byte, error) {
	columns := csvColumns(entity, rows)
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, column := range columns {
			record[i] = formatValue(row.Field(column))
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvColumns prefers the declared grid schema so column order is stable; rows
// with no declared schema fall back to the union of observed field names.
func csvColumns(entity domain.EntityType, rows []domain.Row) []string {
	if schema, ok := domain.SchemaFor(entity); ok {
		return schema.FieldNames()
	}
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for name := range row.Fields {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case float32:
		return fmt.Sprintf("%g", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprint(v)
	}
}
