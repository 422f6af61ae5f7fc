package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/slotman/internal/model"
)

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

func adminRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/attendance/slot-am/2026-08-31/user-456", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	return req
}

// TestAdminOnlyMiddleware_AdminPasses は管理者の利用者が後段ハンドラーに
// 到達することを検証する。
func TestAdminOnlyMiddleware_AdminPasses(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id != "admin-1" {
				t.Errorf("user ID = %s, want admin-1", id)
			}
			return &model.User{ID: id, IsAdmin: true}, nil
		},
	}

	called := false
	mw := NewAdminOnlyMiddleware(finder)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, adminRequest("admin-1"))

	if !called {
		t.Error("next handler should have been called")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

// TestAdminOnlyMiddleware_NonAdminForbidden は管理者でない利用者が
// 403 ADMIN_REQUIREDで拒否されることを検証する。
func TestAdminOnlyMiddleware_NonAdminForbidden(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Role: model.RoleUndergraduate, IsAdmin: false}, nil
		},
	}

	mw := NewAdminOnlyMiddleware(finder)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not have been called")
	})).ServeHTTP(rec, adminRequest("student-1"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != model.ErrCodeAdminRequired {
		t.Errorf("error code = %s, want %s", body.Code, model.ErrCodeAdminRequired)
	}
}

// TestAdminOnlyMiddleware_UnknownUserForbidden は利用者が見つからない場合に
// 403で拒否されることを検証する。
func TestAdminOnlyMiddleware_UnknownUserForbidden(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	mw := NewAdminOnlyMiddleware(finder)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not have been called")
	})).ServeHTTP(rec, adminRequest("ghost"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

// TestAdminOnlyMiddleware_MissingContextUnauthorized はセッションミドルウェアを
// 通過していないリクエストが401で拒否されることを検証する。
func TestAdminOnlyMiddleware_MissingContextUnauthorized(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			t.Error("user finder should not have been called")
			return nil, nil
		},
	}

	mw := NewAdminOnlyMiddleware(finder)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not have been called")
	})).ServeHTTP(rec, adminRequest(""))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestAdminOnlyMiddleware_FinderError は利用者検索の失敗が500として
// 報告されることを検証する。
func TestAdminOnlyMiddleware_FinderError(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("db down")
		},
	}

	mw := NewAdminOnlyMiddleware(finder)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not have been called")
	})).ServeHTTP(rec, adminRequest("admin-1"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
