// Package checkin はQRチェックインのドメインロジックを提供する。
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/metrics"
	"github.com/hitoshi/slotman/internal/model"
	"github.com/hitoshi/slotman/internal/notifier"
	"github.com/hitoshi/slotman/internal/repository"
)

// Options はServiceの動作設定。
type Options struct {
	// VenueCode はこのデプロイが受け付けるQRコードの施設コード。
	VenueCode string
	// LockTimeout はセッションロック取得の待機上限。
	LockTimeout time.Duration
	// Location は営業日と壁時計時刻の判定に使うタイムゾーン。
	Location *time.Location
	// Now は現在時刻の取得関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Service はチェックイン操作のサービス層。
// スロット解決（ロック外の純粋判定）とセッション変更（ロック下の
// read-check-mutate-write）を編成する。
type Service struct {
	userRepo       repository.UserRepository
	slotRepo       repository.TimeSlotRepository
	attendanceRepo repository.AttendanceRepository
	locks          *lock.Manager
	notifier       notifier.Notifier
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	opts           Options
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	slotRepo repository.TimeSlotRepository,
	attendanceRepo repository.AttendanceRepository,
	locks *lock.Manager,
	n notifier.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		userRepo:       userRepo,
		slotRepo:       slotRepo,
		attendanceRepo: attendanceRepo,
		locks:          locks,
		notifier:       n,
		metrics:        collector,
		logger:         logger,
		opts:           opts,
	}
}

// CheckInResponse はチェックイン試行の結果。
// 業務上想定される失敗（重複・資格なし・定員超過）はエラーではなく
// Outcomeとして返す。
type CheckInResponse struct {
	Outcome        model.CheckInOutcome
	TimeSlotID     string
	SlotLabel      string
	SessionDate    string
	Reason         ResolveReason
	CurrentCount   int
	AvailableSpots int
	Record         *model.CheckInRecord
}

// CheckIn はQRコードのスキャンによるチェックインを実行する。
//
// 処理の流れ:
//  1. QRペイロードの検証（施設コードの一致）。状態には一切触れない。
//  2. 利用者の取得。
//  3. 本日適用されるスロットの占有スナップショットを収集し、
//     チェックイン先スロットを解決する（ロック外）。
//  4. (スロット, 営業日)キーのロックを取得し、記録からセッションを
//     復元してチェックインを試行、成功時のみ記録の追記とカウンタの
//     バージョン検証付き書き込みを行う。
//  5. コミット後に観測者へ通知する（ベストエフォート）。
func (s *Service) CheckIn(ctx context.Context, userID, qrValue string) (*CheckInResponse, error) {
	venue, err := ParseQRPayload(qrValue)
	if err != nil {
		s.metrics.RecordCheckInRejected("invalid_qr")
		return nil, err
	}
	if venue != s.opts.VenueCode {
		s.metrics.RecordCheckInRejected("invalid_qr")
		return nil, model.NewInvalidQRCodeError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := s.opts.Now().In(s.opts.Location)
	sessionDate := model.SessionDate(now, s.opts.Location)

	candidates, err := s.collectCandidates(ctx, now, sessionDate)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveSlot(candidates, user, model.MinutesOfDay(now))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case model.ErrCodeNoEligibleSlot:
				s.metrics.RecordCheckInRejected("no_eligible_slot")
			case model.ErrCodeNoSlotAvailable:
				s.metrics.RecordCheckInRejected("no_slot_available")
			}
		}
		return nil, err
	}

	resp, err := s.checkInToSlot(ctx, user, resolved.Slot, sessionDate, model.CheckInMethodQRScan, now)
	if err != nil {
		return nil, err
	}
	resp.Reason = resolved.Reason
	return resp, nil
}

// collectCandidates は本日適用される有効スロットの占有スナップショットを収集する。
// スナップショットの読み取りはロックを取得しない。
func (s *Service) collectCandidates(ctx context.Context, now time.Time, sessionDate string) ([]CandidateSlot, error) {
	slots, err := s.slotRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("スロット一覧の取得に失敗しました: %w", err)
	}

	candidates := make([]CandidateSlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.AppliesOn(now.Weekday()) {
			continue
		}
		count, _, err := s.attendanceRepo.FindSession(ctx, slot.ID, sessionDate)
		if err != nil {
			return nil, fmt.Errorf("出席スナップショットの取得に失敗しました: %w", err)
		}
		candidates = append(candidates, CandidateSlot{
			Slot:           slot,
			CurrentCount:   count,
			AvailableSpots: slot.MaxCapacity - count,
		})
	}
	return candidates, nil
}

// checkInToSlot はロック保持下でのチェックイン本体。
// ロックキーは(スロットID, 営業日)の組であり、同じ組への並行チェックインは
// ここで直列化される。異なるスロットや日付は互いにブロックしない。
func (s *Service) checkInToSlot(ctx context.Context, user *model.User, slot model.TimeSlot, sessionDate string, method model.CheckInMethod, now time.Time) (*CheckInResponse, error) {
	key := SessionKey(slot.ID, sessionDate)
	var result model.CheckInResult

	lockStart := time.Now()
	err := s.locks.WithLock(ctx, key, s.opts.LockTimeout, func(version uint64) error {
		s.metrics.RecordLockWait(time.Since(lockStart))

		session, dbVersion, err := s.loadSession(ctx, slot, sessionDate)
		if err != nil {
			return err
		}

		result, err = session.CheckIn(user, method, now)
		if err != nil {
			return err
		}
		if result.Outcome != model.CheckInOutcomeSuccess {
			return nil
		}

		if err := s.attendanceRepo.AppendRecord(ctx, *result.Record); err != nil {
			return fmt.Errorf("チェックイン記録の追記に失敗しました: %w", err)
		}
		if err := s.attendanceRepo.SaveSession(ctx, slot.ID, sessionDate, session.CurrentCount(), dbVersion); err != nil {
			return fmt.Errorf("出席カウンタの書き込みに失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			s.metrics.RecordLockTimeout(key)
			return nil, model.NewLockTimeoutError(key)
		}
		if errors.Is(err, lock.ErrVersionConflict) {
			// ロック保持下でのバージョン不一致は、ロックを経由しない
			// 書き込み経路の存在を意味する
			s.metrics.RecordOptimisticConflict("attendance_session")
			s.logger.Error("ロック保持下で出席カウンタのバージョン競合が発生しました",
				slog.String("key", key),
			)
			return nil, model.NewConcurrencyConflictError(key)
		}
		return nil, err
	}

	resp := &CheckInResponse{
		Outcome:        result.Outcome,
		TimeSlotID:     slot.ID,
		SlotLabel:      slot.Label,
		SessionDate:    sessionDate,
		CurrentCount:   result.NewCount,
		AvailableSpots: result.AvailableSpots,
		Record:         result.Record,
	}

	switch result.Outcome {
	case model.CheckInOutcomeSuccess:
		s.metrics.RecordCheckInSuccess(slot.ID)
		s.broadcastAttendance(slot, sessionDate, result.NewCount, result.AvailableSpots)
	case model.CheckInOutcomeAlreadyCheckedIn:
		s.metrics.RecordCheckInRejected("already_checked_in")
	case model.CheckInOutcomeNotEligible:
		s.metrics.RecordCheckInRejected("not_eligible")
	case model.CheckInOutcomeCapacityExceeded:
		s.metrics.RecordCheckInRejected("capacity_exceeded")
	}

	return resp, nil
}

// loadSession は永続化済みの記録から出席セッションを復元する。
// ロック保持下でのみ呼び出すこと。
// カウンタと記録数が食い違っている場合は記録を正として復元し、
// 次回の書き込みでカウンタが自己修復される。
func (s *Service) loadSession(ctx context.Context, slot model.TimeSlot, sessionDate string) (*model.AttendanceSession, int64, error) {
	count, dbVersion, err := s.attendanceRepo.FindSession(ctx, slot.ID, sessionDate)
	if err != nil {
		return nil, 0, fmt.Errorf("出席セッションの取得に失敗しました: %w", err)
	}

	records, err := s.attendanceRepo.ListRecords(ctx, slot.ID, sessionDate)
	if err != nil {
		return nil, 0, fmt.Errorf("チェックイン記録の取得に失敗しました: %w", err)
	}

	if count != len(records) {
		s.logger.Warn("出席カウンタと記録数が一致しません。記録を正として復元します",
			slog.String("time_slot_id", slot.ID),
			slog.String("session_date", sessionDate),
			slog.Int("counter", count),
			slog.Int("records", len(records)),
		)
	}

	session, err := model.AttendanceSessionFromRecords(slot, sessionDate, records, s.opts.Now())
	if err != nil {
		return nil, 0, err
	}
	return session, dbVersion, nil
}

// broadcastAttendance はコミット済みの出席変化を観測者へ通知する。
func (s *Service) broadcastAttendance(slot model.TimeSlot, sessionDate string, count, available int) {
	s.notifier.BroadcastToRoom(
		notifier.SlotRoom(slot.ID, sessionDate),
		notifier.EventAttendanceUpdated,
		notifier.AttendancePayload{
			TimeSlotID:     slot.ID,
			SessionDate:    sessionDate,
			CurrentCount:   count,
			AvailableSpots: available,
			IsFull:         available <= 0,
		},
	)
}

// OccupancySnapshot はスロットの占有状況のロック外スナップショット。
type OccupancySnapshot struct {
	TimeSlotID     string
	Label          string
	StartClock     string
	EndClock       string
	SessionDate    string
	MaxCapacity    int
	Restriction    model.Restriction
	CurrentCount   int
	AvailableSpots int
	IsFull         bool
}

// Occupancy は指定スロットの本日の占有状況を返す。
// 読み取り専用でありロックを取得しない。返される値は読み取り時点の
// スナップショットで、返却直後には古くなっている可能性がある。
func (s *Service) Occupancy(ctx context.Context, timeSlotID string) (*OccupancySnapshot, error) {
	slot, err := s.slotRepo.FindByID(ctx, timeSlotID)
	if err != nil {
		return nil, fmt.Errorf("スロットの取得に失敗しました: %w", err)
	}
	if slot == nil {
		return nil, model.NewSlotNotFoundError(timeSlotID)
	}

	now := s.opts.Now().In(s.opts.Location)
	sessionDate := model.SessionDate(now, s.opts.Location)
	count, _, err := s.attendanceRepo.FindSession(ctx, slot.ID, sessionDate)
	if err != nil {
		return nil, fmt.Errorf("出席スナップショットの取得に失敗しました: %w", err)
	}

	return snapshotOf(*slot, sessionDate, count), nil
}

// ListOccupancy は本日適用される有効スロット全件の占有状況を返す。
func (s *Service) ListOccupancy(ctx context.Context) ([]OccupancySnapshot, error) {
	now := s.opts.Now().In(s.opts.Location)
	sessionDate := model.SessionDate(now, s.opts.Location)

	candidates, err := s.collectCandidates(ctx, now, sessionDate)
	if err != nil {
		return nil, err
	}

	snapshots := make([]OccupancySnapshot, len(candidates))
	for i, c := range candidates {
		snapshots[i] = *snapshotOf(c.Slot, sessionDate, c.CurrentCount)
	}
	return snapshots, nil
}

func snapshotOf(slot model.TimeSlot, sessionDate string, count int) *OccupancySnapshot {
	available := slot.MaxCapacity - count
	return &OccupancySnapshot{
		TimeSlotID:     slot.ID,
		Label:          slot.Label,
		StartClock:     slot.StartClock(),
		EndClock:       slot.EndClock(),
		SessionDate:    sessionDate,
		MaxCapacity:    slot.MaxCapacity,
		Restriction:    slot.Restriction,
		CurrentCount:   count,
		AvailableSpots: available,
		IsFull:         available <= 0,
	}
}

// RemoveCheckIn は指定利用者のチェックイン記録を削除する（管理者操作）。
// チェックインと同じセッションロックの下で記録の削除とカウンタの
// 書き込みを行う。該当記録が存在しない場合はfalseを返す。
func (s *Service) RemoveCheckIn(ctx context.Context, timeSlotID, sessionDate, userID string) (bool, error) {
	slot, err := s.slotRepo.FindByID(ctx, timeSlotID)
	if err != nil {
		return false, fmt.Errorf("スロットの取得に失敗しました: %w", err)
	}
	if slot == nil {
		return false, model.NewSlotNotFoundError(timeSlotID)
	}

	key := SessionKey(timeSlotID, sessionDate)
	var removed bool
	var newCount, available int

	lockStart := time.Now()
	err = s.locks.WithLock(ctx, key, s.opts.LockTimeout, func(version uint64) error {
		s.metrics.RecordLockWait(time.Since(lockStart))

		session, dbVersion, err := s.loadSession(ctx, *slot, sessionDate)
		if err != nil {
			return err
		}

		removed, err = session.RemoveCheckIn(userID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}

		if _, err := s.attendanceRepo.DeleteRecord(ctx, timeSlotID, sessionDate, userID); err != nil {
			return fmt.Errorf("チェックイン記録の削除に失敗しました: %w", err)
		}
		if err := s.attendanceRepo.SaveSession(ctx, timeSlotID, sessionDate, session.CurrentCount(), dbVersion); err != nil {
			return fmt.Errorf("出席カウンタの書き込みに失敗しました: %w", err)
		}
		newCount = session.CurrentCount()
		available = session.AvailableSpots()
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			s.metrics.RecordLockTimeout(key)
			return false, model.NewLockTimeoutError(key)
		}
		return false, err
	}

	if removed {
		s.logger.Info("チェックイン記録を削除しました",
			slog.String("time_slot_id", timeSlotID),
			slog.String("session_date", sessionDate),
			slog.String("user_id", userID),
		)
		s.broadcastAttendance(*slot, sessionDate, newCount, available)
	}
	return removed, nil
}
