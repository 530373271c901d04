package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/newsflash/internal/config"
	"github.com/foxzi/newsflash/internal/models"
	"github.com/foxzi/newsflash/internal/newsletter"
	"github.com/foxzi/newsflash/internal/sandbox"
)

// mockNewsletter records the calls made by the handlers
type mockNewsletter struct {
	subscribed   []string
	unsubscribed []string
	sent         [][]models.Article
	testTo       []string

	subscribeResult   newsletter.SubscribeResult
	unsubscribeResult newsletter.UnsubscribeResult
}

func (m *mockNewsletter) Subscribe(ctx context.Context, addr string) newsletter.SubscribeResult {
	m.subscribed = append(m.subscribed, addr)
	return m.subscribeResult
}

func (m *mockNewsletter) Unsubscribe(ctx context.Context, token string) newsletter.UnsubscribeResult {
	m.unsubscribed = append(m.unsubscribed, token)
	return m.unsubscribeResult
}

func (m *mockNewsletter) SendNewsletter(ctx context.Context, articles []models.Article, testRecipient string) newsletter.SendResult {
	m.sent = append(m.sent, articles)
	m.testTo = append(m.testTo, testRecipient)
	return newsletter.SendResult{Sent: 1, Attempted: 1, Message: "Newsletter sent to 1 recipients"}
}

type mockSubscribers struct {
	subs   []models.Subscriber
	filter models.SubscriberFilter
}

func (m *mockSubscribers) List(ctx context.Context, filter models.SubscriberFilter) ([]models.Subscriber, int, error) {
	m.filter = filter
	return m.subs, len(m.subs), nil
}

func (m *mockSubscribers) CountActive(ctx context.Context) (int, error) {
	return len(m.subs), nil
}

type mockLogs struct {
	entries []models.DeliveryLogEntry
	filter  models.DeliveryLogFilter
	since   time.Time
	err     error
}

func (m *mockLogs) List(ctx context.Context, filter models.DeliveryLogFilter) ([]models.DeliveryLogEntry, int, error) {
	m.filter = filter
	return m.entries, len(m.entries), m.err
}

func (m *mockLogs) Stats(ctx context.Context, since time.Time) (*models.DeliveryStats, error) {
	m.since = since
	if m.err != nil {
		return nil, m.err
	}
	return &models.DeliveryStats{Sent: 4, Failed: 1, Total: 5, SentSince: 3}, nil
}

type mockArticles struct {
	articles []models.Article
	limit    int
}

func (m *mockArticles) ListRecentPublished(ctx context.Context, limit int) ([]models.Article, error) {
	m.limit = limit
	if limit < len(m.articles) {
		return m.articles[:limit], nil
	}
	return m.articles, nil
}

func (m *mockArticles) CountPublished(ctx context.Context) (int, error) {
	return len(m.articles), nil
}

type testEnv struct {
	server      *Server
	newsletter  *mockNewsletter
	subscribers *mockSubscribers
	logs        *mockLogs
	articles    *mockArticles
	sandbox     *sandbox.Storage
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()

	sb, err := sandbox.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	if err != nil {
		t.Fatalf("sandbox.Open() error = %v", err)
	}
	t.Cleanup(func() { sb.Close() })

	env := &testEnv{
		newsletter: &mockNewsletter{
			subscribeResult:   newsletter.SubscribeResult{Outcome: newsletter.OutcomeSubscribed, Message: "Successfully subscribed", Welcome: true},
			unsubscribeResult: newsletter.UnsubscribeResult{Outcome: newsletter.UnsubscribeDone, Message: "Successfully unsubscribed"},
		},
		subscribers: &mockSubscribers{subs: []models.Subscriber{{ID: "1", Email: "a@example.com", Active: true}}},
		logs:        &mockLogs{},
		articles: &mockArticles{articles: []models.Article{
			{ID: "1", Title: "One"}, {ID: "2", Title: "Two"}, {ID: "3", Title: "Three"},
		}},
		sandbox: sb,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.server = NewServer(Deps{
		Newsletter:  env.newsletter,
		Subscribers: env.subscribers,
		Logs:        env.logs,
		Articles:    env.articles,
		Sandbox:     sb,
		DigestSize:  2,
		Version:     "test",
	}, &cfg, logger)
	return env
}

func (e *testEnv) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.10:40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
}

func TestHandleSubscribe(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{APIKey: "secret"})

	rec := env.do(http.MethodPost, "/api/v1/subscribe", `{"email":"  Reader@Example.com "}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (subscribe is public)", rec.Code)
	}

	var resp SubscribeResponse
	decode(t, rec, &resp)
	if !resp.Success || resp.Outcome != newsletter.OutcomeSubscribed || !resp.WelcomeSent {
		t.Errorf("response = %+v", resp)
	}
	if len(env.newsletter.subscribed) != 1 || env.newsletter.subscribed[0] != "reader@example.com" {
		t.Errorf("subscribed = %v", env.newsletter.subscribed)
	}
}

func TestHandleSubscribe_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"email":`},
		{"empty", `{"email":""}`},
		{"no at", `{"email":"reader"}`},
		{"display name", `{"email":"Reader <reader@example.com>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, config.APIConfig{})

			rec := env.do(http.MethodPost, "/api/v1/subscribe", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(env.newsletter.subscribed) != 0 {
				t.Error("Subscribe should not be called")
			}
		})
	}
}

func TestHandleSubscribe_AlreadySubscribed(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	env.newsletter.subscribeResult = newsletter.SubscribeResult{
		Outcome: newsletter.OutcomeAlreadySubscribed,
		Message: "Email already subscribed",
	}

	rec := env.do(http.MethodPost, "/api/v1/subscribe", `{"email":"a@example.com"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp SubscribeResponse
	decode(t, rec, &resp)
	if resp.Success || resp.Message != "Email already subscribed" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleUnsubscribe(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{APIKey: "secret"})

	rec := env.do(http.MethodGet, "/api/v1/unsubscribe/tok-123", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(env.newsletter.unsubscribed) != 1 || env.newsletter.unsubscribed[0] != "tok-123" {
		t.Errorf("unsubscribed = %v", env.newsletter.unsubscribed)
	}

	env.newsletter.unsubscribeResult = newsletter.UnsubscribeResult{Outcome: newsletter.UnsubscribeFailed}
	rec = env.do(http.MethodGet, "/api/v1/unsubscribe/tok-123", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 on store failure", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		cfg    config.APIConfig
		header map[string]string
		want   int
	}{
		{"no key configured", config.APIConfig{}, nil, http.StatusOK},
		{"missing key", config.APIConfig{APIKey: "secret"}, nil, http.StatusUnauthorized},
		{"wrong key", config.APIConfig{APIKey: "secret"}, map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", config.APIConfig{APIKey: "secret"}, map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", config.APIConfig{APIKey: "secret"}, map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"basic is not bearer", config.APIConfig{APIKey: "secret"}, map[string]string{"Authorization": "Basic secret"}, http.StatusUnauthorized},
		{"bcrypt hash", config.APIConfig{APIKeyHash: string(hash)}, map[string]string{"X-API-Key": "hashed-secret"}, http.StatusOK},
		{"bcrypt hash wrong", config.APIConfig{APIKeyHash: string(hash)}, map[string]string{"X-API-Key": "secret"}, http.StatusUnauthorized},
		{"hash wins over plain", config.APIConfig{APIKey: "secret", APIKeyHash: string(hash)}, map[string]string{"X-API-Key": "secret"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.cfg)

			rec := env.do(http.MethodGet, "/api/v1/subscribers", "", tt.header)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized {
				var resp ErrorResponse
				decode(t, rec, &resp)
				if resp.Error != "Unauthorized" {
					t.Errorf("error = %q", resp.Error)
				}
			}
		})
	}
}

func TestIPFilterProtectsManagementOnly(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{AllowedIPs: []string{"10.0.0.0/8"}})

	if rec := env.do(http.MethodGet, "/api/v1/subscribers", "", nil); rec.Code != http.StatusForbidden {
		t.Errorf("management status = %d, want 403", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/v1/subscribe", `{"email":"a@example.com"}`, nil); rec.Code != http.StatusOK {
		t.Errorf("subscribe status = %d, want 200", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/api/v1/subscribers", "", map[string]string{"X-Real-IP": "10.1.2.3"}); rec.Code != http.StatusOK {
		t.Errorf("allowed client status = %d, want 200", rec.Code)
	}
}

func TestHandleSendNewsletter_LatestArticles(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodPost, "/api/v1/newsletter/send", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if env.articles.limit != 2 {
		t.Errorf("limit = %d, want digest size 2", env.articles.limit)
	}
	if len(env.newsletter.sent) != 1 || len(env.newsletter.sent[0]) != 2 {
		t.Fatalf("sent = %v", env.newsletter.sent)
	}
	if env.newsletter.testTo[0] != "" {
		t.Errorf("test recipient = %q, want empty", env.newsletter.testTo[0])
	}

	var resp newsletter.SendResult
	decode(t, rec, &resp)
	if resp.Sent != 1 || resp.Message == "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleSendNewsletter_TestModeAndLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodPost, "/api/v1/newsletter/send", `{"test_email":"Editor@Example.com","limit":3}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.articles.limit != 3 {
		t.Errorf("limit = %d, want 3", env.articles.limit)
	}
	if env.newsletter.testTo[0] != "editor@example.com" {
		t.Errorf("test recipient = %q", env.newsletter.testTo[0])
	}

	rec = env.do(http.MethodPost, "/api/v1/newsletter/send", `{"test_email":"not-an-address"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad test_email", rec.Code)
	}
}

func TestHandleSendNewsletter_InlineArticles(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	body := `{"articles":[{"title":"Flood","content":"Water everywhere","is_breaking":true},{"title":"Vote","category":"Politics"}]}`
	rec := env.do(http.MethodPost, "/api/v1/newsletter/send", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if env.articles.limit != 0 {
		t.Error("inline articles should not query the store")
	}

	got := env.newsletter.sent[0]
	if len(got) != 2 {
		t.Fatalf("articles = %d, want 2", len(got))
	}
	if !got[0].IsBreaking || got[0].Category != "General" {
		t.Errorf("first article = %+v", got[0])
	}
	if got[1].Category != "Politics" {
		t.Errorf("second category = %q", got[1].Category)
	}

	rec = env.do(http.MethodPost, "/api/v1/newsletter/send", `{"articles":[{"title":"  "}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for untitled article", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodGet, "/api/v1/newsletter/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats newsletter.Stats
	decode(t, rec, &stats)
	if stats.ActiveSubscribers != 1 || stats.PublishedArticles != 3 || stats.EmailsSentToday != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if h, m, s := env.logs.since.Clock(); h != 0 || m != 0 || s != 0 || env.logs.since.Location() != time.UTC {
		t.Errorf("since = %v, want midnight UTC", env.logs.since)
	}

	env.logs.err = errors.New("disk gone")
	rec = env.do(http.MethodGet, "/api/v1/newsletter/stats", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandleSubscribers(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodGet, "/api/v1/subscribers?search=example&active=true&limit=5000&offset=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	f := env.subscribers.filter
	if f.Search != "example" || f.Active == nil || !*f.Active || f.Limit != maxPageSize || f.Offset != 10 {
		t.Errorf("filter = %+v", f)
	}

	var resp SubscribersResponse
	decode(t, rec, &resp)
	if resp.Total != 1 || resp.Subscribers[0].Email != "a@example.com" {
		t.Errorf("response = %+v", resp)
	}

	if rec := env.do(http.MethodGet, "/api/v1/subscribers?active=maybe", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleLogs(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(http.MethodGet, "/api/v1/logs?recipient=A@Example.com&status=failed&category=newsletter", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	f := env.logs.filter
	if f.Recipient != "a@example.com" || f.Status != models.DeliveryFailed || f.Category != models.CategoryNewsletter || f.Limit != defaultPageSize {
		t.Errorf("filter = %+v", f)
	}

	var resp LogsResponse
	decode(t, rec, &resp)
	if resp.Logs == nil {
		t.Error("logs should be an empty list, not null")
	}

	for _, q := range []string{"status=bounced", "category=promo"} {
		if rec := env.do(http.MethodGet, "/api/v1/logs?"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestSandboxEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	ctx := context.Background()

	tr := sandbox.NewTransport(env.sandbox, nil)
	raw := "From: news@flash.test\r\nTo: reader@example.com\r\nSubject: Hello\r\n\r\nbody\r\n"
	if err := tr.Deliver(ctx, "news@flash.test", []string{"reader@example.com"}, []byte(raw)); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	rec := env.do(http.MethodGet, "/api/v1/sandbox/messages?recipient=reader@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list SandboxListResponse
	decode(t, rec, &list)
	if list.Total != 1 || list.Messages[0].Subject != "Hello" {
		t.Fatalf("list = %+v", list)
	}

	rec = env.do(http.MethodGet, "/api/v1/sandbox/messages/"+list.Messages[0].ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"raw":"From: news@flash.test`)) {
		t.Errorf("get body = %s", rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/api/v1/sandbox/messages/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}

	rec = env.do(http.MethodGet, "/api/v1/sandbox/stats", "", nil)
	var stats sandbox.Stats
	decode(t, rec, &stats)
	if stats.Total != 1 {
		t.Errorf("stats total = %d, want 1", stats.Total)
	}

	if rec := env.do(http.MethodDelete, "/api/v1/sandbox/messages?older_than=bogus", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad older_than status = %d, want 400", rec.Code)
	}
	if rec := env.do(http.MethodDelete, "/api/v1/sandbox/messages", "", nil); rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
	msgs, _ := env.sandbox.List(ctx, sandbox.ListFilter{})
	if len(msgs) != 0 {
		t.Errorf("messages after clear = %d, want 0", len(msgs))
	}
}
