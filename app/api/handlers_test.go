package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/ai"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/digest"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/sources"
	"github.com/lysyi3m/rss-digest/app/summary"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test</title>
    <item>
      <title>Hello</title>
      <link>https://blog.example.com/hello</link>
      <description>Hello body</description>
      <pubDate>Wed, 01 May 2024 08:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

// MockSummarizer answers with a fixed result or error
type MockSummarizer struct {
	err   error
	calls int
}

func (m *MockSummarizer) Model() string { return "test-model" }

func (m *MockSummarizer) Summarize(ctx context.Context, input ai.Input) (ai.Result, error) {
	m.calls++
	if m.err != nil {
		return ai.Result{}, m.err
	}
	return ai.Result{Summary: "Summary of " + input.Title, KeyPoints: []string{"k"}}, nil
}

type testServer struct {
	router     *gin.Engine
	summarizer *MockSummarizer
	feedURL    string
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	t.Cleanup(feedServer.Close)

	sourceRepo := database.NewSourceRepository(db)
	itemRepo := database.NewItemRepository(db)
	summarizer := &MockSummarizer{}

	sourceService := sources.NewService(sourceRepo, itemRepo, feed.NewStrategies(feedServer.Client(), "", 0), "")
	enricher := summary.NewEnricher(summarizer, feed.NewContentExtractor(), itemRepo, database.NewSummaryRepository(db))
	compiler := digest.NewCompiler(sourceRepo, itemRepo, database.NewDigestRepository(db), nil)

	handler := NewHandler(sourceService, itemRepo, enricher, compiler, "test")
	return &testServer{
		router:     NewServer(handler, apiKey),
		summarizer: summarizer,
		feedURL:    feedServer.URL,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "secret")

	w := s.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	decode(t, w, &body)
	if body["status"] != "ok" || body["sources"] != float64(0) || body["items"] != float64(0) {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	if w := s.do(t, "GET", "/api/sources", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/sources", nil, "X-API-Key", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/sources", nil, "X-API-Key", "secret"); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with header key, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/sources", nil, "Authorization", "Bearer secret"); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer key, got %d", w.Code)
	}
}

func TestSourceLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, "POST", "/api/sources", map[string]interface{}{"name": "Blog", "url": s.feedURL, "category": "Go"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created database.Source
	decode(t, w, &created)

	if w := s.do(t, "POST", "/api/sources", map[string]interface{}{"name": "Copy", "url": s.feedURL}); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate URL, got %d", w.Code)
	}
	if w := s.do(t, "POST", "/api/sources", map[string]interface{}{"url": s.feedURL + "/other"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", w.Code)
	}

	w = s.do(t, "PATCH", "/api/sources/"+created.ID, map[string]interface{}{"fetchIntervalMinutes": 15})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated database.Source
	decode(t, w, &updated)
	if updated.FetchIntervalMinutes != 15 || updated.Name != "Blog" {
		t.Errorf("Expected partial update, got %+v", updated)
	}

	if w := s.do(t, "PATCH", "/api/sources/missing", map[string]interface{}{"name": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown source, got %d", w.Code)
	}

	w = s.do(t, "POST", "/api/sources/"+created.ID+"/toggle", nil)
	var toggled database.Source
	decode(t, w, &toggled)
	if toggled.Enabled {
		t.Error("Expected source to be disabled")
	}

	w = s.do(t, "POST", "/api/sources/"+created.ID+"/fetch", nil)
	var fetched map[string]int
	decode(t, w, &fetched)
	if w.Code != http.StatusOK || fetched["inserted"] != 1 {
		t.Errorf("Expected 1 inserted, got %d %v", w.Code, fetched)
	}

	if w := s.do(t, "POST", "/api/sources/missing/fetch", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for fetching unknown source, got %d", w.Code)
	}

	w = s.do(t, "GET", "/api/items?source_id="+created.ID, nil)
	var items struct {
		Items []database.Item `json:"items"`
		Total int             `json:"total"`
	}
	decode(t, w, &items)
	if items.Total != 1 || items.Items[0].Title != "Hello" {
		t.Errorf("Unexpected items: %+v", items)
	}

	if w := s.do(t, "DELETE", "/api/sources/"+created.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w := s.do(t, "DELETE", "/api/sources/"+created.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestSeedSources(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, "POST", "/api/sources/seed", nil)
	var body map[string]int
	decode(t, w, &body)
	if body["inserted"] != 24 {
		t.Errorf("Expected 24 seeded, got %v", body)
	}

	w = s.do(t, "POST", "/api/sources/seed", nil)
	decode(t, w, &body)
	if body["inserted"] != 0 {
		t.Errorf("Expected reseed to insert 0, got %v", body)
	}
}

func TestItemEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	if w := s.do(t, "GET", "/api/items?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid limit, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/items/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown item, got %d", w.Code)
	}
	if w := s.do(t, "POST", "/api/items/missing/summary", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 summarizing unknown item, got %d", w.Code)
	}
}

func TestSummaryEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, "POST", "/api/sources", map[string]interface{}{"name": "Blog", "url": s.feedURL})
	var source database.Source
	decode(t, w, &source)
	s.do(t, "POST", "/api/sources/"+source.ID+"/fetch", nil)

	w = s.do(t, "GET", "/api/items", nil)
	var items struct {
		Items []database.Item `json:"items"`
	}
	decode(t, w, &items)
	if len(items.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items.Items))
	}
	itemID := items.Items[0].ID

	if w := s.do(t, "GET", "/api/items/"+itemID+"/summary", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before summarizing, got %d", w.Code)
	}

	s.summarizer.err = ai.ErrNotConfigured
	if w := s.do(t, "POST", "/api/items/"+itemID+"/summary", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when not configured, got %d", w.Code)
	}

	s.summarizer.err = &ai.RequestError{StatusCode: 500}
	if w := s.do(t, "POST", "/api/items/"+itemID+"/summary", nil); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on upstream failure, got %d", w.Code)
	}

	s.summarizer.err = nil
	w = s.do(t, "POST", "/api/items/"+itemID+"/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created database.Summary
	decode(t, w, &created)
	if created.Summary != "Summary of Hello" || created.Model != "test-model" {
		t.Errorf("Unexpected summary: %+v", created)
	}

	w = s.do(t, "GET", "/api/items/"+itemID+"/summary", nil)
	var fetched database.Summary
	decode(t, w, &fetched)
	if fetched.ID != created.ID {
		t.Errorf("Expected stored summary, got %+v", fetched)
	}
}

func TestDigestEndpoints(t *testing.T) {
	s := newTestServer(t, "")

	if w := s.do(t, "POST", "/api/digests/run?date=05-01-2024", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid date, got %d", w.Code)
	}

	w := s.do(t, "POST", "/api/digests/run?date=2024-05-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var d database.Digest
	decode(t, w, &d)
	if d.Date != "2024-05-01" || d.Summary != "No items found for this day." {
		t.Errorf("Unexpected digest: %+v", d)
	}

	if w := s.do(t, "GET", "/api/digests/2024-05-01", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for stored digest, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/api/digests/2024-05-02", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing digest, got %d", w.Code)
	}

	w = s.do(t, "GET", "/api/digests", nil)
	var list struct {
		Total int `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 1 {
		t.Errorf("Expected 1 digest, got %d", list.Total)
	}
}
