package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/model"
)

// PostgresAttendanceRepo はPostgreSQLを使用した出席リポジトリ。
// 出席カウンタはバージョン列付きのattendance_sessions行、
// 個々のチェックインはcheck_in_records行として保存する。
// (user_id, time_slot_id, session_date)のUNIQUE制約により、
// 二重カウントの禁止をストレージ層でも裏付ける。
type PostgresAttendanceRepo struct {
	db *sql.DB
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db *sql.DB) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

// FindSession は(スロット, 営業日)の出席カウンタとバージョンを返す。
// 未作成の場合は(0, 0, nil)を返す。
func (r *PostgresAttendanceRepo) FindSession(ctx context.Context, timeSlotID, sessionDate string) (int, int64, error) {
	var count int
	var version int64
	err := r.db.QueryRowContext(ctx,
		`SELECT current_count, version FROM attendance_sessions
		 WHERE time_slot_id = $1 AND session_date = $2`,
		timeSlotID, sessionDate,
	).Scan(&count, &version)

	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("出席セッションの取得に失敗しました: %w", err)
	}
	return count, version, nil
}

// SaveSession は出席カウンタをバージョン検証付きで書き込む。
// expectedVersionが0の場合は新規行を作成する。既に行が存在する、
// またはバージョンが一致しない場合はlock.ErrVersionConflictを返す。
func (r *PostgresAttendanceRepo) SaveSession(ctx context.Context, timeSlotID, sessionDate string, count int, expectedVersion int64) error {
	now := time.Now().UTC()

	if expectedVersion == 0 {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO attendance_sessions (time_slot_id, session_date, current_count, version, created_at, updated_at)
			 VALUES ($1, $2, $3, 1, $4, $4)
			 ON CONFLICT (time_slot_id, session_date) DO NOTHING`,
			timeSlotID, sessionDate, count, now,
		)
		if err != nil {
			return fmt.Errorf("出席セッションの作成に失敗しました: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("出席セッション作成結果の確認に失敗しました: %w", err)
		}
		if affected == 0 {
			return lock.ErrVersionConflict
		}
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE attendance_sessions
		 SET current_count = $3, version = version + 1, updated_at = $4
		 WHERE time_slot_id = $1 AND session_date = $2 AND version = $5`,
		timeSlotID, sessionDate, count, now, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("出席セッションの更新に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("出席セッション更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return lock.ErrVersionConflict
	}
	return nil
}

// ListRecords は(スロット, 営業日)のチェックイン記録を時系列順で返す。
func (r *PostgresAttendanceRepo) ListRecords(ctx context.Context, timeSlotID, sessionDate string) ([]model.CheckInRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, time_slot_id, session_date, check_in_time, method
		 FROM check_in_records
		 WHERE time_slot_id = $1 AND session_date = $2
		 ORDER BY check_in_time ASC`,
		timeSlotID, sessionDate,
	)
	if err != nil {
		return nil, fmt.Errorf("チェックイン記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.CheckInRecord
	for rows.Next() {
		var rec model.CheckInRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TimeSlotID, &rec.SessionDate, &rec.CheckInTime, &rec.Method); err != nil {
			return nil, fmt.Errorf("チェックイン記録の読み取りに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チェックイン記録の走査に失敗しました: %w", err)
	}
	return records, nil
}

// AppendRecord はチェックイン記録を追記する。
// (user_id, time_slot_id, session_date)のUNIQUE制約違反は、
// ロック規律が守られていれば発生しない。
func (r *PostgresAttendanceRepo) AppendRecord(ctx context.Context, record model.CheckInRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO check_in_records (id, user_id, time_slot_id, session_date, check_in_time, method)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.UserID, record.TimeSlotID, record.SessionDate, record.CheckInTime, record.Method,
	)
	if err != nil {
		return fmt.Errorf("チェックイン記録の追記に失敗しました: %w", err)
	}
	return nil
}

// DeleteRecord は指定利用者のチェックイン記録を削除する（管理者操作専用）。
func (r *PostgresAttendanceRepo) DeleteRecord(ctx context.Context, timeSlotID, sessionDate, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM check_in_records
		 WHERE time_slot_id = $1 AND session_date = $2 AND user_id = $3`,
		timeSlotID, sessionDate, userID,
	)
	if err != nil {
		return false, fmt.Errorf("チェックイン記録の削除に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("チェックイン記録削除結果の確認に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
