// Package client provides typed HTTP bindings and a polling workflow for the
// optilab solve API. It is the Go counterpart of the browser frontend: submit
// a run, poll its job until a terminal status, then fetch the stored result.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/optilab/optilab-api/internal/domain/model"
)

const (
	defaultTimeout = 30 * time.Second

	// Error bodies are diagnostic only; cap them so a misbehaving proxy
	// cannot make the client buffer arbitrary payloads.
	maxErrorBodyBytes = 4 * 1024
)

// APIError is a non-2xx response from the API. Code carries the server's
// machine-readable error code ("validation", "not_found", ...), Message the
// human-readable elaboration and Field the offending request field when the
// server names one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d (%s)", e.StatusCode, e.Code)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. "http://localhost:8080". Required.
	BaseURL string
	// HTTPClient overrides the default client (30s timeout). Cookie-based
	// auth flows supply a client with a cookie jar here.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a typed HTTP client for the optilab API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New validates opts and constructs a Client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("BaseURL is required")
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    resolveHTTPClient(opts.HTTPClient),
		logger:  resolveLogger(opts.Logger),
	}, nil
}

func resolveHTTPClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: defaultTimeout}
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// doJSON performs one request against the API: payload is marshalled when
// non-nil, out decoded from 2xx bodies when non-nil. Non-2xx responses come
// back as *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "closing response body failed", "error", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errorFromResponse(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}

// errorFromResponse turns a non-2xx response into an *APIError, tolerating
// bodies that are not the API's JSON error shape (proxies, load balancers).
func errorFromResponse(resp *http.Response) error {
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if readErr != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: "unreadable_body", Message: readErr.Error()}
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       "unexpected_response",
			Message:    strings.TrimSpace(string(raw)),
		}
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       body.Error,
		Message:    body.Message,
		Field:      body.Field,
	}
}

// SubmitRun submits a solve and returns the queued job's identifier.
// Validation failures surface synchronously as *APIError; no job exists then.
func (c *Client) SubmitRun(ctx context.Context, req *model.SolveRequest) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/solver/run", req, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", errors.New("submit response carried no job id")
	}
	return resp.JobID, nil
}

// JobStatus fetches the current status snapshot for a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*model.JobStatusSnapshot, error) {
	var snap model.JobStatusSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/api/solver/status/"+url.PathEscape(jobID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CancelJob asks the server to cancel a job. Running jobs cancel
// asynchronously; the outcome reports whether the cancellation is already
// terminal or merely requested.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*model.CancelOutcome, error) {
	var outcome model.CancelOutcome
	if err := c.doJSON(ctx, http.MethodPost, "/api/solver/cancel/"+url.PathEscape(jobID), nil, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Solvers lists the solver catalog with availability flags.
func (c *Client) Solvers(ctx context.Context) ([]model.SolverInfo, error) {
	var resp struct {
		Solvers []model.SolverInfo `json:"solvers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/solver/solvers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Solvers, nil
}

// ResultsParams filters and pages the run history listing.
type ResultsParams struct {
	ModelID *int64
	Limit   int
	Offset  int
}

// Results lists run history, newest first.
func (c *Client) Results(ctx context.Context, params ResultsParams) (*model.RunPage, error) {
	q := url.Values{}
	if params.ModelID != nil {
		q.Set("model_id", strconv.FormatInt(*params.ModelID, 10))
	}
	addPaging(q, params.Limit, params.Offset)

	var page model.RunPage
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/solver/results", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Result fetches the full run record, variables and constraints included.
func (c *Client) Result(ctx context.Context, resultID int64) (*model.RunDetail, error) {
	var detail model.RunDetail
	path := fmt.Sprintf("/api/solver/results/%d", resultID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteResult removes a stored run. Requires an instructor session when auth
// is enabled.
func (c *Client) DeleteResult(ctx context.Context, resultID int64) error {
	path := fmt.Sprintf("/api/solver/results/%d", resultID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// QueryResult evaluates a JMESPath expression server-side against the run
// record and returns the raw evaluation result.
func (c *Client) QueryResult(ctx context.Context, resultID int64, expression string) (json.RawMessage, error) {
	payload := struct {
		Expression string `json:"expression"`
	}{Expression: expression}

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	path := fmt.Sprintf("/api/solver/results/%d/query", resultID)
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// ModelPage is one page of stored models plus the unpaged total.
type ModelPage struct {
	Total int               `json:"total"`
	Items []model.AMPLModel `json:"items"`
}

// PageParams pages a listing.
type PageParams struct {
	Limit  int
	Offset int
}

// Models lists stored models.
func (c *Client) Models(ctx context.Context, params PageParams) (*ModelPage, error) {
	q := url.Values{}
	addPaging(q, params.Limit, params.Offset)

	var page ModelPage
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/models", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateModel stores a new model.
func (c *Client) CreateModel(ctx context.Context, req *model.CreateModelRequest) (*model.AMPLModel, error) {
	var m model.AMPLModel
	if err := c.doJSON(ctx, http.MethodPost, "/api/models", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Model fetches one model by id.
func (c *Client) Model(ctx context.Context, id int64) (*model.AMPLModel, error) {
	var m model.AMPLModel
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/models/%d", id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateModel applies a partial update and returns the updated model.
func (c *Client) UpdateModel(ctx context.Context, id int64, req model.UpdateModelRequest) (*model.AMPLModel, error) {
	var m model.AMPLModel
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/models/%d", id), req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteModel removes a model. Requires an instructor session when auth is
// enabled.
func (c *Client) DeleteModel(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/models/%d", id), nil, nil)
}

// ValidateModel runs an engine syntax check without solving.
func (c *Client) ValidateModel(ctx context.Context, id int64) (*model.ModelValidation, error) {
	var v model.ModelValidation
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/models/%d/validate", id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ModelInfo fetches the structural outline of a model: sets, parameters,
// variables, objectives, constraints.
func (c *Client) ModelInfo(ctx context.Context, id int64) (*model.ModelInfo, error) {
	var info model.ModelInfo
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/models/%d/info", id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DataFiles lists the data files attached to a model.
func (c *Client) DataFiles(ctx context.Context, modelID int64) ([]model.DataFile, error) {
	var files []model.DataFile
	path := fmt.Sprintf("/api/models/%d/data-files", modelID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// CreateDataFile attaches a data file to a model.
func (c *Client) CreateDataFile(
	ctx context.Context,
	modelID int64,
	req *model.CreateDataFileRequest,
) (*model.DataFile, error) {
	var f model.DataFile
	path := fmt.Sprintf("/api/models/%d/data-files", modelID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DataFile fetches one data file by id.
func (c *Client) DataFile(ctx context.Context, id int64) (*model.DataFile, error) {
	var f model.DataFile
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/data-files/%d", id), nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateDataFile applies a partial update and returns the updated file.
func (c *Client) UpdateDataFile(
	ctx context.Context,
	id int64,
	req model.UpdateDataFileRequest,
) (*model.DataFile, error) {
	var f model.DataFile
	if err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/data-files/%d", id), req, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteDataFile removes a data file. Requires an instructor session when
// auth is enabled.
func (c *Client) DeleteDataFile(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/data-files/%d", id), nil, nil)
}

// NetworkData fetches the network flow diagram for a run.
func (c *Client) NetworkData(ctx context.Context, resultID int64) (*model.NetworkData, error) {
	var data model.NetworkData
	path := fmt.Sprintf("/api/visualization/network/%d", resultID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SensitivityData fetches shadow prices, reduced costs and binding
// constraints for a run.
func (c *Client) SensitivityData(ctx context.Context, resultID int64) (*model.SensitivityData, error) {
	var data model.SensitivityData
	path := fmt.Sprintf("/api/visualization/sensitivity/%d", resultID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// CompareRuns fetches a side-by-side comparison of the given runs. Unknown
// run ids are skipped server-side.
func (c *Client) CompareRuns(ctx context.Context, runIDs []int64) (*model.RunComparison, error) {
	if len(runIDs) == 0 {
		return nil, errors.New("at least one run id is required")
	}
	parts := make([]string, 0, len(runIDs))
	for _, id := range runIDs {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	q := url.Values{}
	q.Set("run_ids", strings.Join(parts, ","))

	var cmp model.RunComparison
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/visualization/comparison", q), nil, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// VariableChart fetches chart-ready variable values for a run, optionally
// restricted to one variable name.
func (c *Client) VariableChart(ctx context.Context, resultID int64, variable string) (*model.VariableChartData, error) {
	q := url.Values{}
	if variable != "" {
		q.Set("variable", variable)
	}

	var chart model.VariableChartData
	path := withQuery(fmt.Sprintf("/api/visualization/variables/%d", resultID), q)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &chart); err != nil {
		return nil, err
	}
	return &chart, nil
}

// JobStats fetches queue counters by status.
func (c *Client) JobStats(ctx context.Context) (*model.JobStats, error) {
	var stats model.JobStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/jobs/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// JobPage is one page of job rows plus the unpaged total.
type JobPage struct {
	Total int              `json:"total"`
	Items []model.SolveJob `json:"items"`
}

// JobsParams filters and pages the job listing.
type JobsParams struct {
	Status  *model.JobStatus
	ModelID *int64
	Limit   int
	Offset  int
}

// Jobs lists job rows. Requires an instructor session when auth is enabled.
func (c *Client) Jobs(ctx context.Context, params JobsParams) (*JobPage, error) {
	q := url.Values{}
	if params.Status != nil {
		q.Set("status", string(*params.Status))
	}
	if params.ModelID != nil {
		q.Set("model_id", strconv.FormatInt(*params.ModelID, 10))
	}
	addPaging(q, params.Limit, params.Offset)

	var page JobPage
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/jobs", q), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Health probes the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

func addPaging(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
