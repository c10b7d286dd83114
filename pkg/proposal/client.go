package proposal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the proposal backend operations used during document ingest.
type Client interface {
	UploadDocument(ctx context.Context, projectID, fileName string, body io.Reader) (*UploadResponse, error)
	StartAsyncAnalysis(ctx context.Context, documentID string, opts AnalysisOptions) (*StartAnalysisResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
	GetAnalysis(ctx context.Context, documentID string) (*AnalysisResult, error)
	AnalyzeDocument(ctx context.Context, documentID string) (*AnalysisResult, error)
	AutoBuildSections(ctx context.Context, documentID string, sectionIDs []string, generateContent bool) error
	PopulateQA(ctx context.Context, projectID string, opts PopulateQAOptions) error
}

// UploadResponse is the response from POST /projects/{id}/documents.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// AnalysisOptions is the body for POST /documents/{id}/analyze/async.
type AnalysisOptions struct {
	Tone   string `json:"tone,omitempty"`
	Length string `json:"length,omitempty"`
}

// StartAnalysisResponse is the response from POST /documents/{id}/analyze/async.
type StartAnalysisResponse struct {
	JobID string `json:"job_id"`
}

// PopulateQAOptions is the body for POST /projects/{id}/qa/populate.
type PopulateQAOptions struct {
	CreateQASection    bool `json:"create_qa_section"`
	InjectIntoSections bool `json:"inject_into_sections"`
}

type autoBuildRequest struct {
	SectionIDs      []string `json:"section_ids"`
	GenerateContent bool     `json:"generate_content"`
}

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("proposal: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *httpClient) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the overall HTTP client timeout. It caps every call,
// including the synchronous analysis, regardless of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests to rps requests per second.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new proposal backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) UploadDocument(ctx context.Context, projectID, fileName string, body io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, eris.Wrap(err, "proposal: create form file")
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, eris.Wrap(err, "proposal: copy upload body")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "proposal: close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/projects/%s/documents", projectID), &buf)
	if err != nil {
		return nil, eris.Wrap(err, "proposal: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("proposal: upload %s", fileName))
	}
	return &resp, nil
}

func (c *httpClient) StartAsyncAnalysis(ctx context.Context, documentID string, opts AnalysisOptions) (*StartAnalysisResponse, error) {
	var resp StartAnalysisResponse
	if err := c.post(ctx, c.url("/documents/%s/analyze/async", documentID), opts, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("proposal: start analysis %s", documentID))
	}
	if resp.JobID == "" {
		return nil, eris.Errorf("proposal: start analysis %s: empty job id", documentID)
	}
	return &resp, nil
}

func (c *httpClient) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var resp JobStatus
	if err := c.get(ctx, c.url("/jobs/%s", jobID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("proposal: get job status %s", jobID))
	}
	return &resp, nil
}

func (c *httpClient) GetAnalysis(ctx context.Context, documentID string) (*AnalysisResult, error) {
	var resp AnalysisResult
	if err := c.get(ctx, c.url("/documents/%s/analysis", documentID), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("proposal: get analysis %s", documentID))
	}
	return &resp, nil
}

func (c *httpClient) AnalyzeDocument(ctx context.Context, documentID string) (*AnalysisResult, error) {
	var resp AnalysisResult
	if err := c.post(ctx, c.url("/documents/%s/analyze", documentID), struct{}{}, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("proposal: analyze %s", documentID))
	}
	return &resp, nil
}

func (c *httpClient) AutoBuildSections(ctx context.Context, documentID string, sectionIDs []string, generateContent bool) error {
	body := autoBuildRequest{SectionIDs: sectionIDs, GenerateContent: generateContent}
	if err := c.post(ctx, c.url("/documents/%s/sections/auto-build", documentID), body, nil); err != nil {
		return eris.Wrap(err, fmt.Sprintf("proposal: auto-build sections %s", documentID))
	}
	return nil
}

func (c *httpClient) PopulateQA(ctx context.Context, projectID string, opts PopulateQAOptions) error {
	if err := c.post(ctx, c.url("/projects/%s/qa/populate", projectID), opts, nil); err != nil {
		return eris.Wrap(err, fmt.Sprintf("proposal: populate qa %s", projectID))
	}
	return nil
}

func (c *httpClient) url(pattern, id string) string {
	return c.baseURL + fmt.Sprintf(pattern, url.PathEscape(id))
}

func (c *httpClient) post(ctx context.Context, endpoint string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
