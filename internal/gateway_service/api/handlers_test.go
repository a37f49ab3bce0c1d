package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"

	"github.com/irlmbm/companion-backend/internal/gateway_service/service"
	"github.com/irlmbm/companion-backend/internal/models"
	"github.com/irlmbm/companion-backend/internal/notify"
	"github.com/irlmbm/companion-backend/pkg/logger"
	"github.com/irlmbm/companion-backend/pkg/ratelimiter"
)

type fakePublisher struct {
	published []*models.TaskEnvelope
}

func (f *fakePublisher) Publish(ctx context.Context, envelope *models.TaskEnvelope) error {
	f.published = append(f.published, envelope)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeStatusStore struct {
	records map[string]*models.TaskStatusRecord
}

func (f *fakeStatusStore) Set(ctx context.Context, record *models.TaskStatusRecord) error {
	f.records[record.TaskID] = record
	return nil
}

func (f *fakeStatusStore) Get(ctx context.Context, taskID string) (*models.TaskStatusRecord, error) {
	if record, ok := f.records[taskID]; ok {
		return record, nil
	}
	return &models.TaskStatusRecord{TaskID: taskID, State: models.TaskStateQueued}, nil
}

func newTestRouter(limiter ratelimiter.RateLimiter) (*gin.Engine, *fakePublisher, *fakeStatusStore) {
	gin.SetMode(gin.TestMode)
	pub := &fakePublisher{}
	status := &fakeStatusStore{records: make(map[string]*models.TaskStatusRecord)}

	log := logger.New("test", "", "")
	svc := service.NewTaskService(pub, status, nil, log)
	handler := NewAPI(svc, service.NewConnectionManager(), log, 1)

	router := gin.New()
	RegisterRoutes(router, handler, limiter)
	return router, pub, status
}

func TestSubmitChatAccepted(t *testing.T) {
	router, pub, status := newTestRouter(nil)

	body := strings.NewReader(`{"message": "hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/chat", body)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TaskID    string `json:"task_id"`
		RequestID string `json:"request_id"`
		ThreadID  string `json:"thread_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.TaskID == "" || resp.RequestID == "" || resp.ThreadID == "" {
		t.Errorf("Expected generated ids in the response, got %+v", resp)
	}
	if len(pub.published) != 1 {
		t.Errorf("Expected one published envelope, got %d", len(pub.published))
	}
	if record, _ := status.Get(req.Context(), resp.TaskID); record.State != models.TaskStateQueued {
		t.Errorf("Expected a queued record, got %s", record.State)
	}
}

// terminalStatusStore reports every task as already succeeded, standing
// in for a worker that finishes before the first status poll.
type terminalStatusStore struct {
	record *models.TaskStatusRecord
}

func (s *terminalStatusStore) Set(ctx context.Context, record *models.TaskStatusRecord) error {
	return nil
}

func (s *terminalStatusStore) Get(ctx context.Context, taskID string) (*models.TaskStatusRecord, error) {
	record := *s.record
	record.TaskID = taskID
	return &record, nil
}

func TestSubmitChatWaitReturnsResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	status := &terminalStatusStore{record: &models.TaskStatusRecord{
		State:  models.TaskStateSucceeded,
		Result: &models.TaskResult{Success: true, Message: "hi"},
	}}
	log := logger.New("test", "", "")
	svc := service.NewTaskService(&fakePublisher{}, status, nil, log)
	handler := NewAPI(svc, service.NewConnectionManager(), log, 1)
	router := gin.New()
	RegisterRoutes(router, handler, nil)

	body := strings.NewReader(`{"message": "hello", "request_id": "req-w"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/chat?wait=true", body)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on the wait path, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"message":"hi"`) {
		t.Errorf("Expected the reply in the body, got %s", rec.Body.String())
	}
}

func TestSubmitChatRequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/chat", strings.NewReader(`{"message": "hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without user identity, got %d", rec.Code)
	}
}

func TestSubmitUploadRequiresPayload(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/upload", strings.NewReader(`{}`))
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty upload, got %d", rec.Code)
	}
}

func TestGetTaskDefaultsToQueued(t *testing.T) {
	router, _, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/never-seen", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"state":"queued"`) {
		t.Errorf("Expected a queued record for an unknown id, got %s", rec.Body.String())
	}
}

type fakeSubscription struct {
	ch chan *redis.Message
}

func (s *fakeSubscription) Channel() <-chan *redis.Message { return s.ch }
func (s *fakeSubscription) Close() error                   { return nil }

// fakeSubscriber hands out one buffered subscription per Subscribe call,
// standing in for the Redis pub/sub backend.
type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSubscription
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, userID string) notify.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{ch: make(chan *redis.Message, 1)}
	f.subs = append(f.subs, sub)
	return sub
}

func (f *fakeSubscriber) waitForSubs(t *testing.T, n int) *fakeSubscription {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.subs) >= n {
			sub := f.subs[n-1]
			f.mu.Unlock()
			return sub
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d subscriptions", n)
	return nil
}

func newWebSocketServer(t *testing.T, updates *fakeSubscriber) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	status := &fakeStatusStore{records: make(map[string]*models.TaskStatusRecord)}
	log := logger.New("test", "", "")
	svc := service.NewTaskService(&fakePublisher{}, status, updates, log)
	handler := NewAPI(svc, service.NewConnectionManager(), log, 1)
	router := gin.New()
	RegisterRoutes(router, handler, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialSubscribe(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-User-ID": []string{userID}})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketStreamDeliversUpdates(t *testing.T) {
	updates := &fakeSubscriber{}
	srv := newWebSocketServer(t, updates)

	conn := dialSubscribe(t, srv, "u1")
	sub := updates.waitForSubs(t, 1)

	// The update arrives after the subscription is live, the way a worker
	// publishes once the task finishes.
	sub.ch <- &redis.Message{Payload: `{"task_id":"t1","state":"succeeded"}`}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != `{"task_id":"t1","state":"succeeded"}` {
		t.Errorf("Unexpected payload %q", msg)
	}
}

func TestWebSocketReconnectKeepsFreshConnection(t *testing.T) {
	updates := &fakeSubscriber{}
	srv := newWebSocketServer(t, updates)

	_ = dialSubscribe(t, srv, "u1")
	updates.waitForSubs(t, 1)

	fresh := dialSubscribe(t, srv, "u1")
	sub := updates.waitForSubs(t, 2)

	// Give the replaced connection's teardown time to run; it must not
	// unregister the fresh connection.
	time.Sleep(200 * time.Millisecond)

	sub.ch <- &redis.Message{Payload: `{"task_id":"t2","state":"succeeded"}`}
	fresh.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := fresh.ReadMessage()
	if err != nil {
		t.Fatalf("The fresh connection must keep receiving updates, got %v", err)
	}
	if string(msg) != `{"task_id":"t2","state":"succeeded"}` {
		t.Errorf("Unexpected payload %q", msg)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	router, _, _ := newTestRouter(ratelimiter.NewTokenBucket(1, 2))

	// The first two requests fit the bucket capacity.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1", nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1", nil)
	req.Header.Set("X-User-ID", "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the bucket drained, got %d", rec.Code)
	}
}
