package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/slotman/internal/checkin"
	"github.com/hitoshi/slotman/internal/model"
)

// mockSlotService はSlotServiceInterfaceのモック実装。
type mockSlotService struct {
	listOccupancyFn func(ctx context.Context) ([]checkin.OccupancySnapshot, error)
	occupancyFn     func(ctx context.Context, timeSlotID string) (*checkin.OccupancySnapshot, error)
}

func (m *mockSlotService) ListOccupancy(ctx context.Context) ([]checkin.OccupancySnapshot, error) {
	if m.listOccupancyFn != nil {
		return m.listOccupancyFn(ctx)
	}
	return nil, nil
}

func (m *mockSlotService) Occupancy(ctx context.Context, timeSlotID string) (*checkin.OccupancySnapshot, error) {
	if m.occupancyFn != nil {
		return m.occupancyFn(ctx, timeSlotID)
	}
	return nil, nil
}

func testSnapshot() checkin.OccupancySnapshot {
	return checkin.OccupancySnapshot{
		TimeSlotID:     "slot-am",
		Label:          "午前の部",
		StartClock:     "09:00",
		EndClock:       "12:00",
		SessionDate:    "2026-08-31",
		MaxCapacity:    10,
		Restriction:    model.RestrictionMixed,
		CurrentCount:   4,
		AvailableSpots: 6,
		IsFull:         false,
	}
}

// --- GET /api/slots テスト ---

func TestSlotHandler_ListSlots(t *testing.T) {
	svc := &mockSlotService{
		listOccupancyFn: func(ctx context.Context) ([]checkin.OccupancySnapshot, error) {
			return []checkin.OccupancySnapshot{testSnapshot()}, nil
		},
	}
	h := NewSlotHandler(svc, "pool-01")

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	w := httptest.NewRecorder()

	h.ListSlots(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Slots []slotResponse `json:"slots"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1", len(resp.Slots))
	}
	s := resp.Slots[0]
	if s.TimeSlotID != "slot-am" || s.StartTime != "09:00" || s.EndTime != "12:00" {
		t.Errorf("unexpected slot: %+v", s)
	}
	if s.CurrentCount != 4 || s.AvailableSpots != 6 || s.IsFull {
		t.Errorf("unexpected occupancy: %+v", s)
	}
}

func TestSlotHandler_ListSlots_Empty(t *testing.T) {
	h := NewSlotHandler(&mockSlotService{
		listOccupancyFn: func(ctx context.Context) ([]checkin.OccupancySnapshot, error) {
			return []checkin.OccupancySnapshot{}, nil
		},
	}, "pool-01")

	req := httptest.NewRequest(http.MethodGet, "/api/slots", nil)
	w := httptest.NewRecorder()

	h.ListSlots(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"slots":[]`)) {
		t.Errorf("body = %s, want empty slots array", w.Body.String())
	}
}

// --- GET /api/slots/{id}/occupancy テスト ---

func TestSlotHandler_GetOccupancy(t *testing.T) {
	svc := &mockSlotService{
		occupancyFn: func(ctx context.Context, timeSlotID string) (*checkin.OccupancySnapshot, error) {
			if timeSlotID != "slot-am" {
				t.Errorf("timeSlotID = %q, want %q", timeSlotID, "slot-am")
			}
			snap := testSnapshot()
			return &snap, nil
		},
	}
	h := NewSlotHandler(svc, "pool-01")

	req := httptest.NewRequest(http.MethodGet, "/api/slots/slot-am/occupancy", nil)
	req = withChiURLParams(req, map[string]string{"id": "slot-am"})
	w := httptest.NewRecorder()

	h.GetOccupancy(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp slotResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TimeSlotID != "slot-am" || resp.MaxCapacity != 10 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSlotHandler_GetOccupancy_NotFound(t *testing.T) {
	svc := &mockSlotService{
		occupancyFn: func(ctx context.Context, timeSlotID string) (*checkin.OccupancySnapshot, error) {
			return nil, model.NewSlotNotFoundError(timeSlotID)
		},
	}
	h := NewSlotHandler(svc, "pool-01")

	req := httptest.NewRequest(http.MethodGet, "/api/slots/missing/occupancy", nil)
	req = withChiURLParams(req, map[string]string{"id": "missing"})
	w := httptest.NewRecorder()

	h.GetOccupancy(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeSlotNotFound {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeSlotNotFound)
	}
}

// --- GET /api/slots/qr テスト ---

func TestSlotHandler_GetQRCode(t *testing.T) {
	h := NewSlotHandler(&mockSlotService{}, "pool-01")

	req := httptest.NewRequest(http.MethodGet, "/api/slots/qr", nil)
	w := httptest.NewRecorder()

	h.GetQRCode(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
	// PNGシグネチャの先頭バイトを確認
	body := w.Body.Bytes()
	if len(body) < 8 || !bytes.Equal(body[:4], []byte{0x89, 'P', 'N', 'G'}) {
		t.Errorf("body does not start with PNG signature")
	}
}

func TestSlotHandler_GetQRCode_InvalidSize(t *testing.T) {
	tests := []struct {
		name string
		size string
	}{
		{"数値でない", "abc"},
		{"小さすぎる", "32"},
		{"大きすぎる", "2048"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSlotHandler(&mockSlotService{}, "pool-01")

			req := httptest.NewRequest(http.MethodGet, "/api/slots/qr?size="+tt.size, nil)
			w := httptest.NewRecorder()

			h.GetQRCode(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
