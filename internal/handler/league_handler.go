package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/model"
)

// LeagueServiceInterface は大会ハンドラーが必要とするサービスインターフェース。
type LeagueServiceInterface interface {
	// List は大会の一覧を状態の再計算付きで返す。
	List(ctx context.Context) ([]model.League, error)
	// Get は指定IDの大会を状態の再計算付きで返す。
	Get(ctx context.Context, leagueID string) (*model.League, error)
	// Join は利用者を大会に参加登録する。
	Join(ctx context.Context, leagueID, userID string) (*model.League, error)
}

// LeagueHandler は大会のHTTPハンドラー。
type LeagueHandler struct {
	service LeagueServiceInterface
}

// NewLeagueHandler はLeagueHandlerを生成する。
func NewLeagueHandler(service LeagueServiceInterface) *LeagueHandler {
	return &LeagueHandler{service: service}
}

// leagueResponse は大会のAPIレスポンス。
type leagueResponse struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Status               string     `json:"status"`
	StartDate            time.Time  `json:"start_date"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	RegistrationDeadline time.Time  `json:"registration_deadline"`
	MaxParticipants      *int       `json:"max_participants,omitempty"`
	ParticipantCount     int        `json:"participant_count"`
	IsFull               bool       `json:"is_full"`
}

func toLeagueResponse(l *model.League) leagueResponse {
	return leagueResponse{
		ID:                   l.ID,
		Name:                 l.Name,
		Status:               string(l.Status),
		StartDate:            l.StartDate,
		EndDate:              l.EndDate,
		RegistrationDeadline: l.RegistrationDeadline,
		MaxParticipants:      l.MaxParticipants,
		ParticipantCount:     l.ParticipantCount,
		IsFull:               l.IsFull(),
	}
}

// List は大会一覧を返す。
// GET /api/leagues
func (h *LeagueHandler) List(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]leagueResponse, len(leagues))
	for i := range leagues {
		results[i] = toLeagueResponse(&leagues[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"leagues": results})
}

// Get は大会詳細を返す。
// GET /api/leagues/{id}
func (h *LeagueHandler) Get(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "id")

	league, err := h.service.Get(r.Context(), leagueID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeagueResponse(league))
}

// Join は大会への参加登録を処理する。
// POST /api/leagues/{id}/join
func (h *LeagueHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	leagueID := chi.URLParam(r, "id")

	league, err := h.service.Join(r.Context(), leagueID, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeagueResponse(league))
}
