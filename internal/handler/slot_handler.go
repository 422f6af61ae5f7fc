package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hitoshi/slotman/internal/checkin"
	"github.com/hitoshi/slotman/internal/model"
)

// SlotServiceInterface はスロットハンドラーが必要とするサービスインターフェース。
type SlotServiceInterface interface {
	// ListOccupancy は本日適用されるスロット全件の占有状況を返す。
	ListOccupancy(ctx context.Context) ([]checkin.OccupancySnapshot, error)
	// Occupancy は指定スロットの本日の占有状況を返す。
	Occupancy(ctx context.Context, timeSlotID string) (*checkin.OccupancySnapshot, error)
}

// SlotHandler はタイムスロットのHTTPハンドラー。
type SlotHandler struct {
	service   SlotServiceInterface
	venueCode string
}

// NewSlotHandler はSlotHandlerを生成する。
func NewSlotHandler(service SlotServiceInterface, venueCode string) *SlotHandler {
	return &SlotHandler{service: service, venueCode: venueCode}
}

// slotResponse はスロット占有状況のAPIレスポンス。
type slotResponse struct {
	TimeSlotID     string `json:"time_slot_id"`
	Label          string `json:"label"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	SessionDate    string `json:"session_date"`
	MaxCapacity    int    `json:"max_capacity"`
	Restriction    string `json:"restriction"`
	CurrentCount   int    `json:"current_count"`
	AvailableSpots int    `json:"available_spots"`
	IsFull         bool   `json:"is_full"`
}

func toSlotResponse(s checkin.OccupancySnapshot) slotResponse {
	return slotResponse{
		TimeSlotID:     s.TimeSlotID,
		Label:          s.Label,
		StartTime:      s.StartClock,
		EndTime:        s.EndClock,
		SessionDate:    s.SessionDate,
		MaxCapacity:    s.MaxCapacity,
		Restriction:    string(s.Restriction),
		CurrentCount:   s.CurrentCount,
		AvailableSpots: s.AvailableSpots,
		IsFull:         s.IsFull,
	}
}

// ListSlots は本日のスロット一覧を占有状況付きで返す。
// GET /api/slots
// 占有状況はロック外のスナップショットであり、表示用の参考値。
func (h *SlotHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.service.ListOccupancy(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]slotResponse, len(snapshots))
	for i, s := range snapshots {
		results[i] = toSlotResponse(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": results})
}

// GetOccupancy は指定スロットの占有状況を返す。
// GET /api/slots/{id}/occupancy
func (h *SlotHandler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	slotID := chi.URLParam(r, "id")

	snap, err := h.service.Occupancy(r.Context(), slotID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponse(*snap))
}

// GetQRCode は施設のチェックイン用QRコードをPNGで返す。
// GET /api/slots/qr?size=
// ペイロードは施設コード単位であり、掲示用に全スロット共通。
func (h *SlotHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	size := 256
	if s := r.URL.Query().Get("size"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 64 || parsed > 1024 {
			handleServiceError(w, model.NewValidationError("sizeは64〜1024の整数で指定してください"))
			return
		}
		size = parsed
	}

	png, err := qrcode.Encode(checkin.QRPayload(h.venueCode), qrcode.Medium, size)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
