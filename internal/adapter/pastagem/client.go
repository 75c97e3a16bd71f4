package pastagem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/pastagem-atlas-service/internal/domain"
	"github.com/couchcryptid/pastagem-atlas-service/internal/observability"
)

// DefaultBaseURL is the atlas CSV download endpoint.
const DefaultBaseURL = "https://pastagem.org/atlas/service/map/downloadCSV"

// Doer performs HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportError wraps a failure of the HTTP round trip itself. Non-2xx
// responses are not transport errors; they come back as a Response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "atlas request: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Response is the raw upstream answer. The body is read fully and is
// expected to be CSV; neither status nor content type is inspected.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    domain.SearchRequest
	Parameters domain.EndpointParameters
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Records converts the CSV body into typed records.
func (r *Response) Records() ([]domain.Record, error) {
	return domain.ConvertCSV(bytes.NewReader(r.Body))
}

// Client fetches reports from the atlas download endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an atlas client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchReport validates req, builds the endpoint parameters and performs a
// single GET. Validation failures return a *domain.ValidationError before
// any I/O; round-trip failures return a *TransportError. The body is not
// converted; call Response.Records for that.
func (c *Client) FetchReport(ctx context.Context, req domain.SearchRequest, opts ...RequestOption) (*Response, error) {
	params, err := domain.BuildParameters(req)
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("unknown", "invalid").Inc()
		return nil, err
	}
	report := req.Kind.String()

	o := requestOptions{header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(&o)
	}

	fullURL, err := c.buildURL(params, o.query)
	if err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/csv")
	for k, vs := range o.header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := o.resolveDoer(c.httpClient).Do(httpReq)
	if err != nil {
		c.metrics.FetchDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
		c.metrics.FetchRequests.WithLabelValues(report, "error").Inc()
		c.logger.Warn("atlas request failed", "report", report, "file", params.File, "error", err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.metrics.FetchDuration.WithLabelValues(report).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues(report, "error").Inc()
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	c.metrics.FetchRequests.WithLabelValues(report, "success").Inc()
	c.logger.Debug("atlas report fetched",
		"report", report,
		"file", params.File,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Request:    req,
		Parameters: params,
	}, nil
}

// FetchRecords fetches a report and converts it. Unlike FetchReport it
// treats a non-2xx status as an error.
func (c *Client) FetchRecords(ctx context.Context, req domain.SearchRequest, opts ...RequestOption) ([]domain.Record, error) {
	resp, err := c.FetchReport(ctx, req, opts...)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(resp.Body, 512)}
	}

	return c.Convert(resp)
}

// Convert turns a fetched body into typed records, counting rows and parse
// failures per report.
func (c *Client) Convert(resp *Response) ([]domain.Record, error) {
	report := resp.Request.Kind.String()
	records, err := resp.Records()
	if err != nil {
		c.metrics.ConvertErrors.WithLabelValues(report).Inc()
		return nil, err
	}
	c.metrics.RecordsConverted.WithLabelValues(report).Add(float64(len(records)))
	return records, nil
}

// StatusError is returned by FetchRecords for a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("atlas API error: status %d: %s", e.StatusCode, e.Body)
}

// IsStatusError reports whether err carries a non-2xx upstream status.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// reservedParams are owned by the search request; neither the base URL nor
// WithQuery may supply them.
var reservedParams = []string{"file", "filter", "region"}

func (c *Client) buildURL(params domain.EndpointParameters, extra url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	// region must be absent, not just unset, for layers that do not take it.
	for _, k := range reservedParams {
		q.Del(k)
	}
	for k, vs := range params.Values() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
