package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/slotman/internal/model"
)

// PostgresLeagueRepo はPostgreSQLを使用した大会リポジトリ。
type PostgresLeagueRepo struct {
	db *sql.DB
}

// NewPostgresLeagueRepo はPostgresLeagueRepoを生成する。
func NewPostgresLeagueRepo(db *sql.DB) *PostgresLeagueRepo {
	return &PostgresLeagueRepo{db: db}
}

// FindByID は指定IDの大会を取得する。見つからない場合はnilを返す。
func (r *PostgresLeagueRepo) FindByID(ctx context.Context, id string) (*model.League, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, registration_deadline, registration_enabled,
		        max_participants, participant_count, status, created_at, updated_at
		 FROM leagues WHERE id = $1`,
		id,
	)
	league, err := scanLeague(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("大会の取得に失敗しました: %w", err)
	}
	return league, nil
}

// List は大会の一覧を開始日降順で返す。
func (r *PostgresLeagueRepo) List(ctx context.Context) ([]model.League, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, registration_deadline, registration_enabled,
		        max_participants, participant_count, status, created_at, updated_at
		 FROM leagues ORDER BY start_date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("大会一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var leagues []model.League
	for rows.Next() {
		league, err := scanLeague(rows)
		if err != nil {
			return nil, fmt.Errorf("大会の読み取りに失敗しました: %w", err)
		}
		leagues = append(leagues, *league)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("大会一覧の走査に失敗しました: %w", err)
	}
	return leagues, nil
}

// Create は大会を作成する。
func (r *PostgresLeagueRepo) Create(ctx context.Context, league *model.League) error {
	var maxParticipants sql.NullInt32
	if league.MaxParticipants != nil {
		maxParticipants = sql.NullInt32{Int32: int32(*league.MaxParticipants), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leagues (id, name, start_date, end_date, registration_deadline, registration_enabled,
		                      max_participants, participant_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		league.ID, league.Name, league.StartDate, nullTime(league.EndDate),
		league.RegistrationDeadline, league.RegistrationEnabled,
		maxParticipants, league.ParticipantCount, league.Status, league.CreatedAt, league.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("大会の作成に失敗しました: %w", err)
	}
	return nil
}

// HasParticipant は指定利用者が大会に参加登録済みかを返す。
func (r *PostgresLeagueRepo) HasParticipant(ctx context.Context, leagueID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM league_participants WHERE league_id = $1 AND user_id = $2)`,
		leagueID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("参加登録の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// AddParticipant は参加者の追加と参加者数の加算を同一トランザクションで行う。
func (r *PostgresLeagueRepo) AddParticipant(ctx context.Context, leagueID, userID string, now time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO league_participants (league_id, user_id, joined_at) VALUES ($1, $2, $3)`,
		leagueID, userID, now,
	); err != nil {
		return fmt.Errorf("参加者の追加に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE leagues SET participant_count = participant_count + 1, updated_at = $2 WHERE id = $1`,
		leagueID, now,
	); err != nil {
		return fmt.Errorf("参加者数の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

func scanLeague(row rowScanner) (*model.League, error) {
	league := &model.League{}
	var endDate sql.NullTime
	var maxParticipants sql.NullInt32

	err := row.Scan(
		&league.ID, &league.Name, &league.StartDate, &endDate,
		&league.RegistrationDeadline, &league.RegistrationEnabled,
		&maxParticipants, &league.ParticipantCount, &league.Status,
		&league.CreatedAt, &league.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		league.EndDate = &endDate.Time
	}
	if maxParticipants.Valid {
		n := int(maxParticipants.Int32)
		league.MaxParticipants = &n
	}
	return league, nil
}

// compile-time interface check
var _ LeagueRepository = (*PostgresLeagueRepo)(nil)
