package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotman/internal/checkin"
	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/model"
)

// CheckInServiceInterface はチェックインハンドラーが必要とするサービスインターフェース。
type CheckInServiceInterface interface {
	// CheckIn はQRスキャンによるチェックインを実行する。
	CheckIn(ctx context.Context, userID, qrValue string) (*checkin.CheckInResponse, error)
	// RemoveCheckIn は指定利用者のチェックイン記録を削除する（管理者操作）。
	RemoveCheckIn(ctx context.Context, timeSlotID, sessionDate, userID string) (bool, error)
}

// CheckInHandler はチェックインのHTTPハンドラー。
type CheckInHandler struct {
	service CheckInServiceInterface
}

// NewCheckInHandler はCheckInHandlerを生成する。
func NewCheckInHandler(service CheckInServiceInterface) *CheckInHandler {
	return &CheckInHandler{service: service}
}

// checkInRequest はチェックインリクエストのボディ。
type checkInRequest struct {
	QRValue string `json:"qr_value"`
}

// checkInResponse はチェックイン結果のAPIレスポンス。
// resultは機械判定可能な結果区分であり、表示ロジックの分岐に使用する。
type checkInResponse struct {
	Result         string `json:"result"`
	TimeSlotID     string `json:"time_slot_id"`
	SlotLabel      string `json:"slot_label"`
	SessionDate    string `json:"session_date"`
	Reason         string `json:"reason,omitempty"`
	CurrentCount   int    `json:"current_count"`
	AvailableSpots int    `json:"available_spots"`
	CheckInID      string `json:"check_in_id,omitempty"`
}

// CheckIn はQRスキャンによるチェックインを処理する。
// POST /api/checkin
//
// 業務上の拒否（重複・定員超過）は200でresultに区分を載せて返す。
// スロット解決の失敗やQR不正はエラーレスポンスとなる。
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}
	if req.QRValue == "" {
		handleServiceError(w, model.NewValidationError("qr_valueは必須です"))
		return
	}

	resp, err := h.service.CheckIn(r.Context(), userID, req.QRValue)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	statusCode := http.StatusOK
	if resp.Outcome == model.CheckInOutcomeSuccess {
		statusCode = http.StatusCreated
	}

	body := checkInResponse{
		Result:         string(resp.Outcome),
		TimeSlotID:     resp.TimeSlotID,
		SlotLabel:      resp.SlotLabel,
		SessionDate:    resp.SessionDate,
		Reason:         string(resp.Reason),
		CurrentCount:   resp.CurrentCount,
		AvailableSpots: resp.AvailableSpots,
	}
	if resp.Record != nil {
		body.CheckInID = resp.Record.ID
	}
	writeJSON(w, statusCode, body)
}

// RemoveCheckIn はチェックイン記録の削除を処理する。
// DELETE /api/admin/attendance/{slotID}/{date}/{userID}
func (h *CheckInHandler) RemoveCheckIn(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "slotID")
	date := chi.URLParam(r, "date")
	userID := chi.URLParam(r, "userID")

	removed, err := h.service.RemoveCheckIn(r.Context(), slotID, date, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !removed {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "CHECKIN_NOT_FOUND",
			Message:  "指定されたチェックイン記録が見つかりません。",
			Category: "validation",
			Action:   "スロットID・日付・利用者IDを確認してください。",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
