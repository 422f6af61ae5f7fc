package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/slotman/internal/middleware"
	"github.com/hitoshi/slotman/internal/model"
)

// RegistrationServiceInterface は会員登録ハンドラーが必要とするサービスインターフェース。
type RegistrationServiceInterface interface {
	// Create は支払い待ち状態の新規会員登録を作成する。
	Create(ctx context.Context, userID string) (*model.RegistrationRecord, error)
	// Get は指定IDの会員登録を取得する。
	Get(ctx context.Context, registrationID string) (*model.RegistrationRecord, error)
	// VerifyPayment は支払い確認と登録の有効化を行う。
	VerifyPayment(ctx context.Context, registrationID, paymentRef string) (*model.RegistrationRecord, error)
}

// RegistrationHandler は会員登録のHTTPハンドラー。
type RegistrationHandler struct {
	service RegistrationServiceInterface
}

// NewRegistrationHandler はRegistrationHandlerを生成する。
func NewRegistrationHandler(service RegistrationServiceInterface) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// verifyPaymentRequest は支払い確認リクエストのボディ。
type verifyPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// registrationResponse は会員登録のAPIレスポンス。
type registrationResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"payment_status"`
	RegistrationFee int        `json:"registration_fee"`
	MonthlyFee      int        `json:"monthly_fee"`
	AmountPaid      int        `json:"amount_paid"`
	NextPaymentDate *time.Time `json:"next_payment_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toRegistrationResponse(rec *model.RegistrationRecord) registrationResponse {
	return registrationResponse{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Status:          string(rec.Status),
		PaymentStatus:   string(rec.PaymentStatus),
		RegistrationFee: rec.RegistrationFee,
		MonthlyFee:      rec.MonthlyFee,
		AmountPaid:      rec.AmountPaid,
		NextPaymentDate: rec.NextPaymentDate,
		CreatedAt:       rec.CreatedAt,
	}
}

// Create は新規会員登録を処理する。
// POST /api/registrations
func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	rec, err := h.service.Create(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistrationResponse(rec))
}

// Get は会員登録の取得を処理する。
// GET /api/registrations/{id}
// 自分以外の登録は存在の有無を含めて開示しない。
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}
	registrationID := chi.URLParam(r, "id")

	rec, err := h.service.Get(r.Context(), registrationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if rec.UserID != userID {
		handleServiceError(w, model.NewRegistrationNotFoundError(registrationID))
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponse(rec))
}

// VerifyPayment は支払い確認を処理する。
// POST /api/registrations/{id}/verify
func (h *RegistrationHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "id")

	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequestBody(w)
		return
	}

	rec, err := h.service.VerifyPayment(r.Context(), registrationID, req.PaymentRef)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponse(rec))
}
