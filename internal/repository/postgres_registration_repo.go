package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/slotman/internal/lock"
	"github.com/hitoshi/slotman/internal/model"
)

// PostgresRegistrationRepo はPostgreSQLを使用した会員登録リポジトリ。
// 楽観ロックコントローラのためにバージョン列を持ち、
// 書き込みは常に読み取り時のバージョンを検証する。
type PostgresRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresRegistrationRepo はPostgresRegistrationRepoを生成する。
func NewPostgresRegistrationRepo(db *sql.DB) *PostgresRegistrationRepo {
	return &PostgresRegistrationRepo{db: db}
}

// FindByID は指定IDの登録レコードとバージョンを返す。
// 見つからない場合は(nil, 0, nil)を返す。
func (r *PostgresRegistrationRepo) FindByID(ctx context.Context, id string) (*model.RegistrationRecord, int64, error) {
	rec := &model.RegistrationRecord{}
	var version int64
	var nextPaymentDate sql.NullTime
	var paymentRef sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, registration_fee, monthly_fee, payment_status, status,
		        amount_paid, payment_ref, next_payment_date, billing_day, version, created_at, updated_at
		 FROM registrations WHERE id = $1`,
		id,
	).Scan(
		&rec.ID, &rec.UserID, &rec.RegistrationFee, &rec.MonthlyFee,
		&rec.PaymentStatus, &rec.Status, &rec.AmountPaid, &paymentRef,
		&nextPaymentDate, &rec.BillingDay, &version, &rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("会員登録の取得に失敗しました: %w", err)
	}

	if nextPaymentDate.Valid {
		rec.NextPaymentDate = &nextPaymentDate.Time
	}
	if paymentRef.Valid {
		rec.PaymentRef = paymentRef.String
	}
	return rec, version, nil
}

// Create は登録レコードを作成する。バージョンは1で初期化される。
func (r *PostgresRegistrationRepo) Create(ctx context.Context, rec model.RegistrationRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO registrations (id, user_id, registration_fee, monthly_fee, payment_status, status,
		                            amount_paid, payment_ref, next_payment_date, billing_day, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12)`,
		rec.ID, rec.UserID, rec.RegistrationFee, rec.MonthlyFee, rec.PaymentStatus, rec.Status,
		rec.AmountPaid, nullString(rec.PaymentRef), nullTime(rec.NextPaymentDate), rec.BillingDay,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("会員登録の作成に失敗しました: %w", err)
	}
	return nil
}

// Save は登録レコードをバージョン検証付きで書き込む。
// 読み取り時からバージョンが変わっている場合はlock.ErrVersionConflictを返す。
func (r *PostgresRegistrationRepo) Save(ctx context.Context, rec model.RegistrationRecord, expectedVersion int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE registrations
		 SET payment_status = $2, status = $3, amount_paid = $4, payment_ref = $5,
		     next_payment_date = $6, version = version + 1, updated_at = $7
		 WHERE id = $1 AND version = $8`,
		rec.ID, rec.PaymentStatus, rec.Status, rec.AmountPaid, nullString(rec.PaymentRef),
		nullTime(rec.NextPaymentDate), rec.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("会員登録の更新に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("会員登録更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return lock.ErrVersionConflict
	}
	return nil
}

// ListExpirable は有効状態のまま次回支払日がbeforeより前の登録IDを返す。
func (r *PostgresRegistrationRepo) ListExpirable(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM registrations
		 WHERE status = 'active' AND next_payment_date IS NOT NULL AND next_payment_date < $1
		 ORDER BY next_payment_date ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("期限切れ対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("期限切れ対象の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限切れ対象の走査に失敗しました: %w", err)
	}
	return ids, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ RegistrationRepository = (*PostgresRegistrationRepo)(nil)
