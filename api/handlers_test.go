package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/identity"
	"github.com/jpirok/cleanarchitecture/mediator"
	"github.com/jpirok/cleanarchitecture/tasks"
)

type mockAuth struct {
	err error
}

func (a mockAuth) UserFromHeader(h http.Header) (identity.User, error) {
	if a.err != nil {
		return identity.User{}, a.err
	}
	return identity.User{ID: "user", Roles: []string{"user"}}, nil
}

func newTestServer(t *testing.T, m *mediator.Mediator, auth Authenticator, deduper Deduper) *echo.Echo {
	t.Helper()
	logger, _ := test.NewNullLogger()
	e := echo.New()
	Register(e, m, auth, deduper, logger)
	return e
}

func serve(e *echo.Echo, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListTasksReturnsCallerTasks(t *testing.T) {
	m := mediator.New()
	if err := mediator.Register(m, func(ctx context.Context, _ tasks.ListTasks) ([]tasks.TaskView, error) {
		user, ok := identity.FromContext(ctx)
		if !ok || user.ID != "user" {
			return nil, errors.New("identity missing from request context")
		}
		return []tasks.TaskView{{ID: "1", Title: "a"}, {ID: "2", Title: "b"}}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	e := newTestServer(t, m, mockAuth{}, nil)

	rec := serve(e, http.MethodGet, "/api/tasks", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 2 || resp.Tasks[1].Title != "b" {
		t.Fatalf("unexpected tasks %+v", resp.Tasks)
	}
}

func TestRoutesRequireAuthentication(t *testing.T) {
	e := newTestServer(t, mediator.New(), mockAuth{err: errBadAuthorization}, nil)

	rec := serve(e, http.MethodGet, "/api/tasks", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != errBadAuthorization.Error() {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestErrorsMapToStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &mediator.ValidationError{Request: "CompleteTask", Fields: map[string]string{"ID": "uuid"}}, want: http.StatusBadRequest},
		{err: mediator.ErrUnauthorized, want: http.StatusUnauthorized},
		{err: fmt.Errorf("%w: nope", mediator.ErrForbidden), want: http.StatusForbidden},
		{err: domain.ErrNotOwner, want: http.StatusForbidden},
		{err: domain.ErrNotFound, want: http.StatusNotFound},
		{err: domain.ErrTaskAlreadyDone, want: http.StatusConflict},
		{err: errors.New("database is gone"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			m := mediator.New()
			var gotID string
			if err := mediator.Register(m, func(ctx context.Context, req tasks.CompleteTask) (tasks.TaskView, error) {
				gotID = req.ID
				return tasks.TaskView{}, tt.err
			}); err != nil {
				t.Fatalf("register: %v", err)
			}
			e := newTestServer(t, m, mockAuth{}, nil)

			rec := serve(e, http.MethodPost, "/api/tasks/abc/complete", nil, nil)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if gotID != "abc" {
				t.Fatalf("unexpected id %q", gotID)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "database") {
				t.Fatalf("internal error details leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestCreateTaskAcceptsGzipBody(t *testing.T) {
	m := mediator.New()
	if err := mediator.Register(m, func(ctx context.Context, req tasks.CreateTask) (tasks.TaskView, error) {
		return tasks.TaskView{ID: "new", Title: req.Title, Order: req.Order}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	e := newTestServer(t, m, mockAuth{}, nil)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"title":"zipped","order":4}`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	rec := serve(e, http.MethodPost, "/api/tasks", buf.Bytes(), map[string]string{echo.HeaderContentEncoding: "gzip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var view tasks.TaskView
	if err := sonic.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Title != "zipped" || view.Order != 4 {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestCreateTaskRejectsUnknownFields(t *testing.T) {
	m := mediator.New()
	if err := mediator.Register(m, func(ctx context.Context, req tasks.CreateTask) (tasks.TaskView, error) {
		t.Fatalf("handler should not run")
		return tasks.TaskView{}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	e := newTestServer(t, m, mockAuth{}, nil)

	rec := serve(e, http.MethodPost, "/api/tasks", []byte(`{"title":"x","owner":"someone"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIdempotencyKeyRejectsReplays(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	deduper := NewRedisDeduper(client, time.Minute)

	calls := 0
	m := mediator.New()
	if err := mediator.Register(m, func(ctx context.Context, req tasks.CreateTask) (tasks.TaskView, error) {
		calls++
		if req.Title == "fail" {
			return tasks.TaskView{}, errors.New("boom")
		}
		return tasks.TaskView{ID: "1", Title: req.Title}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	e := newTestServer(t, m, mockAuth{}, deduper)
	key := map[string]string{HeaderIdempotencyKey: "k1"}

	if rec := serve(e, http.MethodPost, "/api/tasks", []byte(`{"title":"a"}`), key); rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec := serve(e, http.MethodPost, "/api/tasks", []byte(`{"title":"a"}`), key); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for replay, got %d", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}

	failKey := map[string]string{HeaderIdempotencyKey: "k2"}
	if rec := serve(e, http.MethodPost, "/api/tasks", []byte(`{"title":"fail"}`), failKey); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if mr.Exists("idempotency:user:k2") {
		t.Fatalf("expected failed request to release its key")
	}
}

type healthBody struct {
	Status  string `json:"status"`
	Details map[string]struct {
		Status string `json:"status"`
	} `json:"details"`
}

func serveHealth(t *testing.T, checks *HealthChecks) (int, healthBody) {
	t.Helper()
	e := echo.New()
	reg := prometheus.NewRegistry()
	UseWebHosting(e, reg)
	MapWebHosting(e, reg, checks)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body healthBody
	if err := sonic.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestHealthEndpoint(t *testing.T) {
	up := func(ctx context.Context) error { return nil }
	code, body := serveHealth(t, NewHealthChecks(time.Second).Add("db", up))
	if code != http.StatusOK || body.Status != "up" {
		t.Fatalf("expected 200 up, got %d %+v", code, body)
	}

	code, body = serveHealth(t, NewHealthChecks(time.Second).
		Add("db", up).
		Add("cache", func(ctx context.Context) error { return errors.New("connection refused") }))
	if code != http.StatusServiceUnavailable || body.Status != "down" {
		t.Fatalf("expected 503 down, got %d %+v", code, body)
	}
	if body.Details["db"].Status != "up" || body.Details["cache"].Status != "down" {
		t.Fatalf("unexpected details %+v", body.Details)
	}
}

func TestHealthRunReportsFailingCheck(t *testing.T) {
	res := NewHealthChecks(time.Second).
		Add("db", func(ctx context.Context) error { return nil }).
		Add("cache", func(ctx context.Context) error { return errors.New("connection refused") }).
		Run(context.Background())
	if res.Status != "down" {
		t.Fatalf("expected down, got %s", res.Status)
	}
}

func TestHealthCheckTimeout(t *testing.T) {
	start := time.Now()
	code, body := serveHealth(t, NewHealthChecks(20*time.Millisecond).
		Add("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	if code != http.StatusServiceUnavailable || body.Details["slow"].Status != "down" {
		t.Fatalf("expected timed out check to be down, got %d %+v", code, body)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("check was not bounded by its timeout")
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	e := echo.New()
	reg := prometheus.NewRegistry()
	UseWebHosting(e, reg)
	MapWebHosting(e, reg, NewHealthChecks(0))

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "echo_requests_total") {
		t.Fatalf("expected echo request metrics, got %s", rec.Body.String())
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	e := echo.New()
	UseWebHosting(e, prometheus.NewRegistry())
	MapWebHosting(e, prometheus.NewRegistry(), NewHealthChecks(0))

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
