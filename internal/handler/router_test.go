package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/slotman/internal/checkin"
	"github.com/hitoshi/slotman/internal/metrics"
	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/model"
)

// mockSessionFinder はmiddleware.SessionFinderのモック実装。
type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// mockUserFinder はmiddleware.UserFinderのモック実装。
type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// testUserFinder は一般利用者user-123と管理者admin-1を解決する。
func testUserFinder() *mockUserFinder {
	return &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			switch id {
			case "user-123":
				return &model.User{ID: id, Role: model.RoleUndergraduate}, nil
			case "admin-1":
				return &model.User{ID: id, Role: model.RoleFaculty, IsAdmin: true}, nil
			}
			return nil, nil
		},
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			switch id {
			case "valid-token":
				return &model.Session{
					ID:        id,
					UserID:    "user-123",
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			case "admin-token":
				return &model.Session{
					ID:        id,
					UserID:    "admin-1",
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	return NewRouter(&RouterDeps{
		SessionFinder:     finder,
		UserFinder:        testUserFinder(),
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Collector:         metrics.Nop{},
		CheckInService: &mockCheckInService{
			removeCheckInFn: func(ctx context.Context, timeSlotID, sessionDate, userID string) (bool, error) {
				return true, nil
			},
		},
		SlotService: &mockSlotService{
			listOccupancyFn: func(ctx context.Context) ([]checkin.OccupancySnapshot, error) {
				return []checkin.OccupancySnapshot{testSnapshot()}, nil
			},
		},
		RegistrationService: &mockRegistrationService{},
		LeagueService:       &mockLeagueService{},
		Hub:                 testHub(),
	})
}

// TestRouter_HealthWithoutAuth はヘルスチェックが認証なしで応答することを検証する。
func TestRouter_HealthWithoutAuth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestRouter_APIRequiresAuth はAPIルートがBearerトークンを要求することを検証する。
func TestRouter_APIRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/slots"},
		{http.MethodPost, "/api/checkin"},
		{http.MethodGet, "/api/leagues"},
		{http.MethodPost, "/api/registrations"},
		{http.MethodGet, "/api/events"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			req := httptest.NewRequest(p.method, p.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

// TestRouter_AuthorizedRequestReachesHandler は有効なトークンで
// ハンドラーまで到達することを検証する。
func TestRouter_AuthorizedRequestReachesHandler(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// TestRouter_SecurityHeaders は全レスポンスにセキュリティヘッダーが
// 付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if got := w.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}

// TestRouter_CORSPreflight はプリフライトリクエストの処理を検証する。
func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/slots", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://app.example.com")
	}
}

// pingFunc はHealthCheckerを関数で実装するアダプタ。
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// TestRouter_HealthReportsDatabaseFailure はDB死活確認の失敗が
// 503として報告されることを検証する。
func TestRouter_HealthReportsDatabaseFailure(t *testing.T) {
	router := NewRouter(&RouterDeps{
		HealthChecker: pingFunc(func(ctx context.Context) error {
			return context.DeadlineExceeded
		}),
		SessionFinder:       &mockSessionFinder{},
		UserFinder:          testUserFinder(),
		CORSAllowedOrigin:   "https://app.example.com",
		RateLimiter:         middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		Collector:           metrics.Nop{},
		CheckInService:      &mockCheckInService{},
		SlotService:         &mockSlotService{},
		RegistrationService: &mockRegistrationService{},
		LeagueService:       &mockLeagueService{},
		Hub:                 testHub(),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestRouter_AdminRouteForbiddenForNonAdmin は一般利用者が管理エンドポイントに
// アクセスできないことを検証する。削除処理自体が実行されてはならない。
func TestRouter_AdminRouteForbiddenForNonAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/attendance/slot-am/2026-08-31/user-456", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusForbidden, w.Body.String())
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeAdminRequired {
		t.Errorf("error code = %s, want %s", result["code"], model.ErrCodeAdminRequired)
	}
}

// TestRouter_AdminRouteAllowsAdmin は管理者が管理エンドポイントに
// 到達できることを検証する。
func TestRouter_AdminRouteAllowsAdmin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/attendance/slot-am/2026-08-31/user-456", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, http.StatusNoContent, w.Body.String())
	}
}

// TestRouter_UnknownRouteReturns404 は未定義ルートの404を検証する。
func TestRouter_UnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
