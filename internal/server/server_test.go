package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"harbor/internal/config"
	"harbor/internal/db"
	"harbor/internal/domain"
	"harbor/internal/engine"
	"harbor/internal/migrate"
	"harbor/internal/repo"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(repo.Repo{DB: conn}, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func statsBody(hours float64) map[string]any {
	return map[string]any{
		"total_hours":           hours,
		"contributor_count":     12,
		"avg_qa_score":          92,
		"annotation_agreement":  90,
		"rejection_rate":        5,
		"metadata_completeness": 100,
	}
}

func createDataset(t *testing.T, srv *testServer, id string, hours float64) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/datasets", map[string]any{
		"id": id, "name": "Lego " + id, "dataset_type": "lego", "stats": statsBody(hours),
	}, map[string]string{"X-Actor-Id": "builder"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create dataset status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/datasets/"+id+"/ready", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ready status %d: %s", res.StatusCode, string(data))
	}
}

func TestCertifyFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createDataset(t, srv, "ds-a", 8)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-a/certify", nil, map[string]string{"X-Actor-Id": "qa-lead"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("certify status %d: %s", res.StatusCode, string(data))
	}
	var result domain.CertificationResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !result.Success || result.Dataset == nil || result.Dataset.Status != domain.StatusCertified {
		t.Fatalf("unexpected result %s", string(data))
	}
	if *result.Dataset.QAReportURL != "/reports/qa_ds-a.pdf" {
		t.Fatalf("qa_report_url = %s", *result.Dataset.QAReportURL)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-a/certify", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second certify status %d: %s", res.StatusCode, string(data))
	}
	result = domain.CertificationResult{}
	_ = json.Unmarshal(data, &result)
	if result.Success || len(result.Errors) != 1 || result.Errors[0] != "Already certified" {
		t.Fatalf("unexpected second result %s", string(data))
	}

	pub, pubBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-a/publish", nil, nil)
	if pub.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d: %s", pub.StatusCode, string(pubBody))
	}
}

func TestCertifyRejectionIsAResult(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDataset(t, srv, "ds-b", 4)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/datasets/ds-b/certify", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("certify status %d: %s", res.StatusCode, string(data))
	}
	var result domain.CertificationResult
	_ = json.Unmarshal(data, &result)
	if result.Success || len(result.Errors) != 1 || result.Errors[0] != "Insufficient hours: 4 < 6" {
		t.Fatalf("unexpected result %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/datasets/missing/certify", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("certify missing status %d: %s", res.StatusCode, string(data))
	}
	result = domain.CertificationResult{}
	_ = json.Unmarshal(data, &result)
	if len(result.Errors) != 1 || result.Errors[0] != "Dataset not found" {
		t.Fatalf("unexpected result %s", string(data))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/datasets/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("unexpected envelope %s", string(data))
	}

	createDataset(t, srv, "ds-1", 8)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets/ds-1/publish", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for publish before certify, got %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}

	stats := statsBody(8)
	delete(stats, "rejection_rate")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/datasets", map[string]any{"name": "x", "stats": stats}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing stats, got %d %s", res.StatusCode, string(data))
	}
}

func TestQAScoreAndReview(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	checks := map[string]any{"framing": 90, "object_coverage": 80, "continuity": 70, "technical_quality": 60, "annotation_coverage": 50}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/qa/score", map[string]any{"checks": checks, "human_score": 85}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("score status %d: %s", res.StatusCode, string(data))
	}
	var summary struct {
		AutoScore      float64  `json:"auto_score"`
		Classification string   `json:"classification"`
		FinalScore     *float64 `json:"final_score"`
		Band           string   `json:"band"`
	}
	_ = json.Unmarshal(data, &summary)
	if summary.AutoScore != 74 || summary.Classification != "pending_review" || summary.FinalScore == nil || *summary.FinalScore != 80.6 || summary.Band != "approved" {
		t.Fatalf("unexpected summary %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/qa/reviews", map[string]any{
		"upload_id": "up-1", "checks": checks, "human_score": 85,
	}, map[string]string{"X-Actor-Id": "reviewer-1"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("review status %d: %s", res.StatusCode, string(data))
	}
	var review domain.QAReview
	_ = json.Unmarshal(data, &review)
	if review.ReviewerID != "reviewer-1" || review.Action != "approve" || !review.IncludeInDataset {
		t.Fatalf("unexpected review %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/qa/reviews?upload_id=up-1", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list reviews status %d: %s", res.StatusCode, string(data))
	}
	var reviews []domain.QAReview
	_ = json.Unmarshal(data, &reviews)
	if len(reviews) != 1 {
		t.Fatalf("expected 1 review, got %s", string(data))
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	createDataset(t, srv, "ds-1", 8)
	createDataset(t, srv, "ds-2", 8)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=3", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 3 || page.NextCursor == "" {
		t.Fatalf("unexpected first page %s", string(data))
	}
	if page.Items[0].Type != "dataset.ready" || page.Items[0].EntityID != "ds-2" || page.Items[0].ActorID != "api" {
		t.Fatalf("unexpected newest event %+v", page.Items[0])
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=3&cursor="+page.NextCursor, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events page 2 status %d: %s", res.StatusCode, string(data))
	}
	page = paginatedEvents{}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 || page.NextCursor != "" || page.Items[0].ActorID != "builder" {
		t.Fatalf("unexpected second page %s", string(data))
	}
}

func TestStatusAndProfiles(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createDataset(t, srv, "ds-1", 8)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/status", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var status StatusResponse
	_ = json.Unmarshal(data, &status)
	if status.DatasetCounts[domain.StatusReadyForCertification] != 1 || len(status.Profiles) != 1 || !status.Profiles[0].Default {
		t.Fatalf("unexpected status %s", string(data))
	}
	if status.Profiles[0].Thresholds.MinQAScore != 90 {
		t.Fatalf("unexpected thresholds %+v", status.Profiles[0].Thresholds)
	}
}
