package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/slotman/internal/model"
)

// mockLeagueService はLeagueServiceInterfaceのモック実装。
type mockLeagueService struct {
	listFn func(ctx context.Context) ([]model.League, error)
	getFn  func(ctx context.Context, leagueID string) (*model.League, error)
	joinFn func(ctx context.Context, leagueID, userID string) (*model.League, error)
}

func (m *mockLeagueService) List(ctx context.Context) ([]model.League, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockLeagueService) Get(ctx context.Context, leagueID string) (*model.League, error) {
	if m.getFn != nil {
		return m.getFn(ctx, leagueID)
	}
	return nil, nil
}

func (m *mockLeagueService) Join(ctx context.Context, leagueID, userID string) (*model.League, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, leagueID, userID)
	}
	return nil, nil
}

func openTestLeague() model.League {
	max := 16
	return model.League{
		ID:                   "league-1",
		Name:                 "秋季リーグ",
		StartDate:            time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		RegistrationDeadline: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		RegistrationEnabled:  true,
		MaxParticipants:      &max,
		ParticipantCount:     5,
		Status:               model.LeagueStatusRegistrationOpen,
	}
}

// --- GET /api/leagues テスト ---

func TestLeagueHandler_List(t *testing.T) {
	svc := &mockLeagueService{
		listFn: func(ctx context.Context) ([]model.League, error) {
			return []model.League{openTestLeague()}, nil
		},
	}
	h := NewLeagueHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/leagues", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Leagues []leagueResponse `json:"leagues"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Leagues) != 1 {
		t.Fatalf("len(leagues) = %d, want 1", len(resp.Leagues))
	}
	l := resp.Leagues[0]
	if l.ID != "league-1" || l.Status != "registration_open" {
		t.Errorf("unexpected league: %+v", l)
	}
	if l.ParticipantCount != 5 || l.IsFull {
		t.Errorf("unexpected occupancy: %+v", l)
	}
}

// --- GET /api/leagues/{id} テスト ---

func TestLeagueHandler_Get(t *testing.T) {
	svc := &mockLeagueService{
		getFn: func(ctx context.Context, leagueID string) (*model.League, error) {
			if leagueID != "league-1" {
				t.Errorf("leagueID = %q, want %q", leagueID, "league-1")
			}
			l := openTestLeague()
			return &l, nil
		},
	}
	h := NewLeagueHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/leagues/league-1", nil)
	req = withChiURLParams(req, map[string]string{"id": "league-1"})
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLeagueHandler_Get_NotFound(t *testing.T) {
	svc := &mockLeagueService{
		getFn: func(ctx context.Context, leagueID string) (*model.League, error) {
			return nil, model.NewLeagueNotFoundError(leagueID)
		},
	}
	h := NewLeagueHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/leagues/missing", nil)
	req = withChiURLParams(req, map[string]string{"id": "missing"})
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- POST /api/leagues/{id}/join テスト ---

func TestLeagueHandler_Join_Success(t *testing.T) {
	svc := &mockLeagueService{
		joinFn: func(ctx context.Context, leagueID, userID string) (*model.League, error) {
			if leagueID != "league-1" || userID != "user-123" {
				t.Errorf("args = (%q, %q), want (league-1, user-123)", leagueID, userID)
			}
			l := openTestLeague()
			l.ParticipantCount = 6
			return &l, nil
		},
	}
	h := NewLeagueHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/leagues/league-1/join", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParams(req, map[string]string{"id": "league-1"})
	w := httptest.NewRecorder()

	h.Join(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var resp leagueResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ParticipantCount != 6 {
		t.Errorf("participant_count = %d, want 6", resp.ParticipantCount)
	}
}

func TestLeagueHandler_Join_Unauthorized(t *testing.T) {
	h := NewLeagueHandler(&mockLeagueService{})

	req := httptest.NewRequest(http.MethodPost, "/api/leagues/league-1/join", nil)
	req = withChiURLParams(req, map[string]string{"id": "league-1"})
	w := httptest.NewRecorder()

	h.Join(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLeagueHandler_Join_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"締め切り済み", model.NewLeagueClosedError("league-1"), http.StatusConflict, model.ErrCodeLeagueClosed},
		{"定員到達", model.NewLeagueFullError("league-1"), http.StatusConflict, model.ErrCodeLeagueFull},
		{"参加済み", model.NewAlreadyJoinedError("league-1"), http.StatusConflict, model.ErrCodeAlreadyJoined},
		{"大会なし", model.NewLeagueNotFoundError("league-1"), http.StatusNotFound, model.ErrCodeLeagueNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLeagueService{
				joinFn: func(ctx context.Context, leagueID, userID string) (*model.League, error) {
					return nil, tt.err
				},
			}
			h := NewLeagueHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/leagues/league-1/join", nil)
			req = withUserID(req, "user-123")
			req = withChiURLParams(req, map[string]string{"id": "league-1"})
			w := httptest.NewRecorder()

			h.Join(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			result := parseAPIErrorResponse(t, w)
			if result["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", result["code"], tt.wantCode)
			}
		})
	}
}
