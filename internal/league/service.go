// Package league は大会の参照と参加登録のドメインロジックを提供する。
package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/model"
	"github.com/hitoshi/slotman/internal/notifier"
	"github.com/hitoshi/slotman/internal/repository"
)

// Options はServiceの動作設定。
type Options struct {
	// LockTimeout は大会ロック取得の待機上限。
	LockTimeout time.Duration
	// Now は現在時刻の取得関数。nilの場合はtime.Nowを使用する。
	Now func() time.Time
}

// Service は大会のサービス層。
// 大会の状態は保存値ではなく読み取り時にComputeStatusで導出して返す。
// 参加登録は大会キーのロックの下で締切・状態・定員・重複を検証する。
type Service struct {
	leagueRepo repository.LeagueRepository
	userRepo   repository.UserRepository
	locks      *lock.Manager
	notifier   notifier.Notifier
	logger     *slog.Logger
	opts       Options
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	leagueRepo repository.LeagueRepository,
	userRepo repository.UserRepository,
	locks *lock.Manager,
	n notifier.Notifier,
	logger *slog.Logger,
	opts Options,
) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		leagueRepo: leagueRepo,
		userRepo:   userRepo,
		locks:      locks,
		notifier:   n,
		logger:     logger,
		opts:       opts,
	}
}

// leagueKey は大会のロックキーを返す。
func leagueKey(leagueID string) string {
	return fmt.Sprintf("league:%s", leagueID)
}

// List は大会の一覧を返す。各大会の状態は現在日時で再計算される。
func (s *Service) List(ctx context.Context) ([]model.League, error) {
	leagues, err := s.leagueRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("大会一覧の取得に失敗しました: %w", err)
	}

	now := s.opts.Now()
	for i := range leagues {
		leagues[i].Status = model.ComputeStatus(&leagues[i], now)
	}
	return leagues, nil
}

// Get は指定IDの大会を返す。状態は現在日時で再計算される。
func (s *Service) Get(ctx context.Context, leagueID string) (*model.League, error) {
	league, err := s.leagueRepo.FindByID(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("大会の取得に失敗しました: %w", err)
	}
	if league == nil {
		return nil, model.NewLeagueNotFoundError(leagueID)
	}

	league.Status = model.ComputeStatus(league, s.opts.Now())
	return league, nil
}

// Join は利用者を大会に参加登録する。
//
// 大会キーのロックの下で最新の大会を再読した上で判定するため、
// 並行する参加登録が定員を超えることはない。判定順序:
// 受付状態（締切・中止・開始済み）→ 定員 → 重複。
// 参加者の追加と参加者数の加算は同一トランザクションで行われる。
func (s *Service) Join(ctx context.Context, leagueID, userID string) (*model.League, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	key := leagueKey(leagueID)
	var joined *model.League

	err = s.locks.WithLock(ctx, key, s.opts.LockTimeout, func(version uint64) error {
		league, err := s.leagueRepo.FindByID(ctx, leagueID)
		if err != nil {
			return fmt.Errorf("大会の取得に失敗しました: %w", err)
		}
		if league == nil {
			return model.NewLeagueNotFoundError(leagueID)
		}

		now := s.opts.Now()
		if model.ComputeStatus(league, now) != model.LeagueStatusRegistrationOpen {
			return model.NewLeagueClosedError(leagueID)
		}
		if league.IsFull() {
			return model.NewLeagueFullError(leagueID)
		}

		already, err := s.leagueRepo.HasParticipant(ctx, leagueID, userID)
		if err != nil {
			return fmt.Errorf("参加状況の確認に失敗しました: %w", err)
		}
		if already {
			return model.NewAlreadyJoinedError(leagueID)
		}

		if err := s.leagueRepo.AddParticipant(ctx, leagueID, userID, now); err != nil {
			return fmt.Errorf("参加登録に失敗しました: %w", err)
		}

		league.ParticipantCount++
		league.Status = model.ComputeStatus(league, now)
		joined = league
		return nil
	})
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, model.NewLockTimeoutError(key)
		}
		return nil, err
	}

	s.logger.Info("大会への参加を登録しました",
		slog.String("league_id", leagueID),
		slog.String("user_id", userID),
		slog.Int("participant_count", joined.ParticipantCount),
	)
	s.notifier.BroadcastToRoom(
		fmt.Sprintf("league:%s", leagueID),
		notifier.EventLeagueUpdated,
		map[string]any{
			"league_id":         leagueID,
			"participant_count": joined.ParticipantCount,
			"is_full":           joined.IsFull(),
		},
	)
	return joined, nil
}
