package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/slotman/internal/model"
)

// PostgresTimeSlotRepo はPostgreSQLを使用したタイムスロットリポジトリ。
type PostgresTimeSlotRepo struct {
	db *sql.DB
}

// NewPostgresTimeSlotRepo はPostgresTimeSlotRepoを生成する。
func NewPostgresTimeSlotRepo(db *sql.DB) *PostgresTimeSlotRepo {
	return &PostgresTimeSlotRepo{db: db}
}

// FindByID は指定IDのスロットを取得する。見つからない場合はnilを返す。
func (r *PostgresTimeSlotRepo) FindByID(ctx context.Context, id string) (*model.TimeSlot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, label, start_minutes, end_minutes, day_of_week, max_capacity, restriction, is_active, created_at, updated_at
		 FROM time_slots WHERE id = $1`,
		id,
	)
	slot, err := scanTimeSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タイムスロットの取得に失敗しました: %w", err)
	}
	return slot, nil
}

// ListActive は有効なスロットの一覧を開始時刻昇順で返す。
func (r *PostgresTimeSlotRepo) ListActive(ctx context.Context) ([]model.TimeSlot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, start_minutes, end_minutes, day_of_week, max_capacity, restriction, is_active, created_at, updated_at
		 FROM time_slots WHERE is_active = TRUE ORDER BY start_minutes ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("タイムスロット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var slots []model.TimeSlot
	for rows.Next() {
		slot, err := scanTimeSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("タイムスロットの読み取りに失敗しました: %w", err)
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タイムスロット一覧の走査に失敗しました: %w", err)
	}
	return slots, nil
}

// Create はスロットを作成する。
func (r *PostgresTimeSlotRepo) Create(ctx context.Context, slot *model.TimeSlot) error {
	var dayOfWeek sql.NullInt32
	if slot.DayOfWeek != nil {
		dayOfWeek = sql.NullInt32{Int32: int32(*slot.DayOfWeek), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_slots (id, label, start_minutes, end_minutes, day_of_week, max_capacity, restriction, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		slot.ID, slot.Label, slot.StartMinutes, slot.EndMinutes, dayOfWeek,
		slot.MaxCapacity, slot.Restriction, slot.IsActive, slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タイムスロットの作成に失敗しました: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeSlot(row rowScanner) (*model.TimeSlot, error) {
	slot := &model.TimeSlot{}
	var dayOfWeek sql.NullInt32

	err := row.Scan(
		&slot.ID, &slot.Label, &slot.StartMinutes, &slot.EndMinutes, &dayOfWeek,
		&slot.MaxCapacity, &slot.Restriction, &slot.IsActive, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dayOfWeek.Valid {
		d := time.Weekday(dayOfWeek.Int32)
		slot.DayOfWeek = &d
	}
	return slot, nil
}

// compile-time interface check
var _ TimeSlotRepository = (*PostgresTimeSlotRepo)(nil)
