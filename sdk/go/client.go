package harborsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Harbor HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Stats is a dataset stats snapshot.
type Stats struct {
	TotalHours           float64 `json:"total_hours"`
	ContributorCount     int     `json:"contributor_count"`
	AvgQAScore           float64 `json:"avg_qa_score"`
	AnnotationAgreement  float64 `json:"annotation_agreement"`
	RejectionRate        float64 `json:"rejection_rate"`
	MetadataCompleteness float64 `json:"metadata_completeness"`
}

// Dataset represents the API dataset build model.
type Dataset struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DatasetType    string  `json:"dataset_type"`
	Version        string  `json:"version"`
	Status         string  `json:"status"`
	Stats          Stats   `json:"stats"`
	ProfileType    string  `json:"profile_type,omitempty"`
	ProfileVersion string  `json:"profile_version,omitempty"`
	CertifiedAt    *string `json:"certified_at,omitempty"`
	QAReportURL    *string `json:"qa_report_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// CreateDataset is the body for registering a build. Empty fields take the
// server defaults.
type CreateDataset struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	DatasetType string `json:"dataset_type,omitempty"`
	Version     string `json:"version,omitempty"`
	Stats       Stats  `json:"stats"`
}

// CertificationResult is returned for both successful and rejected attempts.
type CertificationResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
	Dataset *Dataset `json:"dataset,omitempty"`
}

// AutoCheck holds the per-asset automated check scores.
type AutoCheck struct {
	Framing            float64 `json:"framing"`
	ObjectCoverage     float64 `json:"object_coverage"`
	Continuity         float64 `json:"continuity"`
	TechnicalQuality   float64 `json:"technical_quality"`
	AnnotationCoverage float64 `json:"annotation_coverage"`
}

// QAScore is the composite score summary.
type QAScore struct {
	AutoScore      float64  `json:"auto_score"`
	Classification string   `json:"classification"`
	FinalScore     *float64 `json:"final_score,omitempty"`
	Band           string   `json:"band,omitempty"`
}

// QAReview represents a recorded human review.
type QAReview struct {
	ID               string  `json:"id"`
	UploadID         string  `json:"upload_id"`
	ReviewerID       string  `json:"reviewer_id"`
	AutoScore        float64 `json:"auto_score"`
	HumanScore       float64 `json:"human_score"`
	FinalScore       float64 `json:"final_score"`
	Band             string  `json:"band"`
	Action           string  `json:"action"`
	Notes            string  `json:"notes,omitempty"`
	IncludeInDataset bool    `json:"include_in_dataset"`
	CreatedAt        string  `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateDataset registers a build.
func (c *Client) CreateDataset(ctx context.Context, in CreateDataset) (Dataset, error) {
	var resp Dataset
	err := c.do(ctx, http.MethodPost, "datasets", in, &resp)
	return resp, err
}

// GetDataset fetches a build by id.
func (c *Client) GetDataset(ctx context.Context, id string) (Dataset, error) {
	var resp Dataset
	err := c.do(ctx, http.MethodGet, datasetPath(id, ""), nil, &resp)
	return resp, err
}

// ListDatasets lists builds, optionally filtered by status.
func (c *Client) ListDatasets(ctx context.Context, status string) ([]Dataset, error) {
	endpoint := "datasets"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Dataset
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkReady moves a build to ready_for_certification.
func (c *Client) MarkReady(ctx context.Context, id string) (Dataset, error) {
	var resp Dataset
	err := c.do(ctx, http.MethodPost, datasetPath(id, "ready"), nil, &resp)
	return resp, err
}

// RecordStats replaces the stats snapshot of an uncertified build.
func (c *Client) RecordStats(ctx context.Context, id string, stats Stats) (Dataset, error) {
	var resp Dataset
	err := c.do(ctx, http.MethodPut, datasetPath(id, "stats"), stats, &resp)
	return resp, err
}

// Certify runs certification. A rejected attempt is not an error; inspect
// the result.
func (c *Client) Certify(ctx context.Context, id string) (CertificationResult, error) {
	var resp CertificationResult
	err := c.do(ctx, http.MethodPost, datasetPath(id, "certify"), nil, &resp)
	return resp, err
}

// Publish moves a certified build to published.
func (c *Client) Publish(ctx context.Context, id string) (Dataset, error) {
	var resp Dataset
	err := c.do(ctx, http.MethodPost, datasetPath(id, "publish"), nil, &resp)
	return resp, err
}

// Score computes QA scores without recording anything. humanScore may be nil.
func (c *Client) Score(ctx context.Context, checks AutoCheck, humanScore *float64) (QAScore, error) {
	body := map[string]any{"checks": checks}
	if humanScore != nil {
		body["human_score"] = *humanScore
	}
	var resp QAScore
	err := c.do(ctx, http.MethodPost, "qa/score", body, &resp)
	return resp, err
}

// SubmitReview records a human review. An empty action takes the band default.
func (c *Client) SubmitReview(ctx context.Context, uploadID string, checks AutoCheck, humanScore float64, action, notes string) (QAReview, error) {
	body := map[string]any{
		"upload_id":   uploadID,
		"checks":      checks,
		"human_score": humanScore,
	}
	if action != "" {
		body["action"] = action
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp QAReview
	err := c.do(ctx, http.MethodPost, "qa/reviews", body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func datasetPath(id, action string) string {
	p := "datasets/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
