package gridhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"forestcore/pkg/domain"
)

var _ domain.DataSource = (*Client)(nil)

// Client implements domain.DataSource over the grid HTTP API. It is the
// binding production grids use; tests bind the service directly.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a grid API client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// FetchPage retrieves one visible window plus the total matching count.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (domain.PageResult, error) {
	var result domain.PageResult
	path := fmt.Sprintf("/api/v1/grid/%s/fetch", req.Entity)
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return domain.PageResult{}, err
	}
	return result, nil
}

// SaveRow persists a create (oldRow.IsNew) or update.
func (c *Client) SaveRow(ctx context.Context, entity domain.EntityType, scope domain.Scope, oldRow, newRow domain.Row) (domain.Row, error) {
	method := http.MethodPatch
	if oldRow.IsNew {
		method = http.MethodPost
	}
	var resp struct {
		Row domain.Row `json:"row"`
	}
	path := fmt.Sprintf("/api/v1/grid/%s/rows", entity)
	body := saveRequest{OldRow: oldRow, NewRow: newRow, Scope: scope}
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return domain.Row{}, err
	}
	return resp.Row, nil
}

// DeleteRow removes a durable record, rebuilding *ConflictError from the
// dedicated conflict status.
func (c *Client) DeleteRow(ctx context.Context, entity domain.EntityType, scope domain.Scope, entityID int64) error {
	q := url.Values{}
	q.Set("schema", scope.SchemaName)
	q.Set("plotID", strconv.FormatInt(scope.PlotID, 10))
	q.Set("plotCensusNumber", strconv.Itoa(scope.PlotCensusNumber))
	if scope.QuadratID != 0 {
		q.Set("quadratID", strconv.FormatInt(scope.QuadratID, 10))
	}
	path := fmt.Sprintf("/api/v1/grid/%s/rows/%d?%s", entity, entityID, q.Encode())
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// FetchValidationReport retrieves the wholesale failure snapshot for a schema.
func (c *Client) FetchValidationReport(ctx context.Context, schema string) (domain.ValidationReport, error) {
	var report domain.ValidationReport
	path := "/api/v1/validations/report?schema=" + url.QueryEscape(schema)
	if err := c.do(ctx, http.MethodGet, path, nil, &report); err != nil {
		return domain.ValidationReport{}, err
	}
	return report, nil
}

// FetchValidationProcedures lists the screening rules and their criteria.
func (c *Client) FetchValidationProcedures(ctx context.Context) ([]domain.ValidationProcedure, error) {
	var resp struct {
		Procedures []domain.ValidationProcedure `json:"procedures"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/validations/procedures", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Procedures, nil
}

// RunValidation triggers a full screening pass server side.
func (c *Client) RunValidation(ctx context.Context, schema string) (domain.ValidationRunSummary, error) {
	var summary domain.ValidationRunSummary
	path := "/api/v1/validations/run?schema=" + url.QueryEscape(schema)
	if err := c.do(ctx, http.MethodPost, path, nil, &summary); err != nil {
		return domain.ValidationRunSummary{}, err
	}
	return summary, nil
}

// RefreshSummaryView asks the server to rebuild the measurements summary view.
func (c *Client) RefreshSummaryView(ctx context.Context, schema string) error {
	path := "/api/v1/refreshviews?schema=" + url.QueryEscape(schema)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type errorBody struct {
	Error            string `json:"error"`
	ReferencingTable string `json:"referencingTable"`
}

func decodeFailure(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode == StatusForeignKeyConflict {
		return &domain.ConflictError{ReferencingTable: body.ReferencingTable}
	}
	if body.Error != "" {
		return domain.NewStatusError(resp.StatusCode, "%s", body.Error)
	}
	return domain.NewStatusError(resp.StatusCode, "request failed with status %d", resp.StatusCode)
}
