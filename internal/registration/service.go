// Package registration は会員登録と支払い確認のドメインロジックを提供する。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/metrics"
	"github.com/hitoshi/slotman/internal/model"
	"github.com/hitoshi/slotman/internal/notifier"
	"github.com/hitoshi/slotman/internal/repository"
)

// Options はServiceの動作設定。
type Options struct {
	// RegistrationFee は登録料（円）。
	RegistrationFee int
	// MonthlyFee は月会費（円）。
	MonthlyFee int
	// BillingDay は毎月の請求日（1〜28）。
	BillingDay int
	// MaxRetries は楽観ロックの再試行上限。
	MaxRetries int
	// Now は現在時刻の取得関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Service は会員登録のサービス層。
// 支払い確認と有効化は楽観ロックコントローラで保護された
// read-compute-writeサイクルとして実行される。登録ごとの競合は
// まれであり、キー単位の排他よりバージョン検証が適している。
type Service struct {
	regRepo  repository.RegistrationRepository
	notifier notifier.Notifier
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	opts     Options
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	regRepo repository.RegistrationRepository,
	n notifier.Notifier,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		regRepo:  regRepo,
		notifier: n,
		metrics:  collector,
		logger:   logger,
		opts:     opts,
	}
}

// Create は支払い待ち状態の新規会員登録を作成する。
func (s *Service) Create(ctx context.Context, userID string) (*model.RegistrationRecord, error) {
	if userID == "" {
		return nil, model.NewValidationError("利用者IDは必須です")
	}

	reg, err := model.NewRegistration(
		uuid.New().String(),
		userID,
		s.opts.RegistrationFee,
		s.opts.MonthlyFee,
		s.opts.BillingDay,
		s.opts.Now(),
	)
	if err != nil {
		return nil, err
	}

	rec := reg.Record()
	if err := s.regRepo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("会員登録の作成に失敗しました: %w", err)
	}

	s.logger.Info("会員登録を作成しました",
		slog.String("registration_id", rec.ID),
		slog.String("user_id", userID),
	)
	return &rec, nil
}

// Get は指定IDの会員登録を取得する。
func (s *Service) Get(ctx context.Context, registrationID string) (*model.RegistrationRecord, error) {
	rec, _, err := s.regRepo.FindByID(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("会員登録の取得に失敗しました: %w", err)
	}
	if rec == nil {
		return nil, model.NewRegistrationNotFoundError(registrationID)
	}
	return rec, nil
}

// VerifyPayment は登録料の支払い確認と登録の有効化を行う。
//
// 読み取り時のバージョンを条件に書き込み、競合した場合は再読み取りして
// 再試行する。2回目以降の確認はALREADY_VERIFIEDとして拒否され、
// 支払い参照や金額が上書きされることはない。
func (s *Service) VerifyPayment(ctx context.Context, registrationID, paymentRef string) (*model.RegistrationRecord, error) {
	if paymentRef == "" {
		return nil, model.NewValidationError("支払い参照は必須です")
	}

	now := s.opts.Now()

	next, err := lock.WithOptimistic(ctx, s.opts.MaxRetries,
		func(ctx context.Context) (model.RegistrationRecord, int64, error) {
			rec, version, err := s.regRepo.FindByID(ctx, registrationID)
			if err != nil {
				return model.RegistrationRecord{}, 0, fmt.Errorf("会員登録の取得に失敗しました: %w", err)
			}
			if rec == nil {
				return model.RegistrationRecord{}, 0, model.NewRegistrationNotFoundError(registrationID)
			}
			return *rec, version, nil
		},
		func(current model.RegistrationRecord) (model.RegistrationRecord, error) {
			reg, err := model.RegistrationFromRecord(current)
			if err != nil {
				return model.RegistrationRecord{}, err
			}
			if err := reg.MarkPaymentSucceeded(paymentRef, now); err != nil {
				return model.RegistrationRecord{}, err
			}
			if err := reg.Activate(now); err != nil {
				return model.RegistrationRecord{}, err
			}
			return reg.Record(), nil
		},
		func(ctx context.Context, rec model.RegistrationRecord, expectedVersion int64) error {
			err := s.regRepo.Save(ctx, rec, expectedVersion)
			if errors.Is(err, lock.ErrVersionConflict) {
				s.metrics.RecordOptimisticConflict("registration")
			}
			return err
		},
	)
	if err != nil {
		if errors.Is(err, lock.ErrConcurrencyConflict) {
			return nil, model.NewConcurrencyConflictError(registrationID)
		}
		return nil, err
	}

	s.logger.Info("支払いを確認し会員登録を有効化しました",
		slog.String("registration_id", registrationID),
		slog.String("payment_ref", paymentRef),
	)
	s.notifier.NotifyUser(next.UserID, notifier.EventRegistrationUpdated, notifier.RegistrationPayload{
		RegistrationID: next.ID,
		Status:         string(next.Status),
		PaymentStatus:  string(next.PaymentStatus),
	})
	return &next, nil
}

// Expire は指定の登録を期限切れにする。期限切れ処理ワーカーから呼ばれる。
// すでに期限切れ・取り消し済みの場合は何もせずfalseを返す。
func (s *Service) Expire(ctx context.Context, registrationID string) (bool, error) {
	now := s.opts.Now()
	expired := false

	_, err := lock.WithOptimistic(ctx, s.opts.MaxRetries,
		func(ctx context.Context) (model.RegistrationRecord, int64, error) {
			rec, version, err := s.regRepo.FindByID(ctx, registrationID)
			if err != nil {
				return model.RegistrationRecord{}, 0, fmt.Errorf("会員登録の取得に失敗しました: %w", err)
			}
			if rec == nil {
				return model.RegistrationRecord{}, 0, model.NewRegistrationNotFoundError(registrationID)
			}
			return *rec, version, nil
		},
		func(current model.RegistrationRecord) (model.RegistrationRecord, error) {
			expired = false
			if current.Status != model.RegistrationStatusActive {
				// ワーカーの一覧取得と個別処理の間に状態が変わった場合
				return current, nil
			}
			reg, err := model.RegistrationFromRecord(current)
			if err != nil {
				return model.RegistrationRecord{}, err
			}
			if err := reg.Expire(now); err != nil {
				return model.RegistrationRecord{}, err
			}
			expired = true
			return reg.Record(), nil
		},
		func(ctx context.Context, rec model.RegistrationRecord, expectedVersion int64) error {
			if !expired {
				return nil
			}
			return s.regRepo.Save(ctx, rec, expectedVersion)
		},
	)
	if err != nil {
		if errors.Is(err, lock.ErrConcurrencyConflict) {
			return false, model.NewConcurrencyConflictError(registrationID)
		}
		return false, err
	}

	if expired {
		s.logger.Info("会員登録を期限切れにしました",
			slog.String("registration_id", registrationID),
		)
	}
	return expired, nil
}
