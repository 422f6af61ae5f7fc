// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// PaymentStatus は登録料支払いの状態を表す。
type PaymentStatus string

const (
	// PaymentStatusPending は支払い待ち。
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSucceeded は支払い完了。
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed は支払い失敗。
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded は返金済み。
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// RegistrationStatus は会員登録の状態を表す。
type RegistrationStatus string

const (
	// RegistrationStatusPending は有効化待ち。
	RegistrationStatusPending RegistrationStatus = "pending"
	// RegistrationStatusActive は有効。
	RegistrationStatusActive RegistrationStatus = "active"
	// RegistrationStatusExpired は期限切れ。
	RegistrationStatusExpired RegistrationStatus = "expired"
	// RegistrationStatusCancelled は取り消し済み。
	RegistrationStatusCancelled RegistrationStatus = "cancelled"
)

// Registration は会員登録を表す。
//
// 表現不変条件:
//   - status == active ならば paymentStatus == succeeded
//   - paymentStatus == succeeded ならば amountPaid == registrationFee
//   - nextPaymentDateが設定されている場合、その日は固定の請求日に一致する
//
// ファクトリ関数以外での生成を禁止するため、フィールドは全て非公開。
type Registration struct {
	id              string
	userID          string
	registrationFee int
	monthlyFee      int
	paymentStatus   PaymentStatus
	status          RegistrationStatus
	amountPaid      int
	paymentRef      string
	nextPaymentDate *time.Time
	billingDay      int
	createdAt       time.Time
	updatedAt       time.Time
}

// RegistrationRecord は永続化層とやり取りするRegistrationの平坦な表現。
type RegistrationRecord struct {
	ID              string
	UserID          string
	RegistrationFee int
	MonthlyFee      int
	PaymentStatus   PaymentStatus
	Status          RegistrationStatus
	AmountPaid      int
	PaymentRef      string
	NextPaymentDate *time.Time
	BillingDay      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRegistration は支払い待ち状態の新規会員登録を生成する。
// billingDayは毎月の請求日（1〜28）。
func NewRegistration(id, userID string, registrationFee, monthlyFee, billingDay int, now time.Time) (*Registration, error) {
	r := &Registration{
		id:              id,
		userID:          userID,
		registrationFee: registrationFee,
		monthlyFee:      monthlyFee,
		paymentStatus:   PaymentStatusPending,
		status:          RegistrationStatusPending,
		billingDay:      billingDay,
		createdAt:       now,
		updatedAt:       now,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// RegistrationFromRecord は永続化済みレコードからRegistrationを復元する。
// 不変条件を満たさないレコードはエラーとなり、復元されない。
func RegistrationFromRecord(rec RegistrationRecord) (*Registration, error) {
	r := &Registration{
		id:              rec.ID,
		userID:          rec.UserID,
		registrationFee: rec.RegistrationFee,
		monthlyFee:      rec.MonthlyFee,
		paymentStatus:   rec.PaymentStatus,
		status:          rec.Status,
		amountPaid:      rec.AmountPaid,
		paymentRef:      rec.PaymentRef,
		nextPaymentDate: rec.NextPaymentDate,
		billingDay:      rec.BillingDay,
		createdAt:       rec.CreatedAt,
		updatedAt:       rec.UpdatedAt,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// validate は表現不変条件を検証する。
func (r *Registration) validate() error {
	if r.id == "" || r.userID == "" {
		return NewInvariantViolationError("登録IDと利用者IDは必須です")
	}
	if r.registrationFee < 0 || r.monthlyFee < 0 || r.amountPaid < 0 {
		return NewInvariantViolationError("料金に負の値は設定できません")
	}
	if r.billingDay < 1 || r.billingDay > 28 {
		return NewInvariantViolationError(fmt.Sprintf("請求日が範囲外です: %d", r.billingDay))
	}
	if r.status == RegistrationStatusActive && r.paymentStatus != PaymentStatusSucceeded {
		return NewInvariantViolationError("支払い完了前の登録を有効化することはできません")
	}
	if r.paymentStatus == PaymentStatusSucceeded && r.amountPaid != r.registrationFee {
		return NewInvariantViolationError(
			fmt.Sprintf("支払い済み金額が登録料と一致しません: paid=%d fee=%d", r.amountPaid, r.registrationFee))
	}
	if r.nextPaymentDate != nil && r.nextPaymentDate.Day() != r.billingDay {
		return NewInvariantViolationError(
			fmt.Sprintf("次回支払日が請求日と一致しません: date=%s day=%d", r.nextPaymentDate.Format("2006-01-02"), r.billingDay))
	}
	return nil
}

// MarkPaymentSucceeded は登録料の支払い完了を記録する。
// paymentStatusがpendingの場合にのみ成功し、amountPaidを登録料に設定する。
// すでに支払い済みの場合はErrAlreadyVerifiedに相当するAPIErrorを返す。
func (r *Registration) MarkPaymentSucceeded(paymentRef string, now time.Time) error {
	if r.paymentStatus == PaymentStatusSucceeded {
		return NewAlreadyVerifiedError(r.id)
	}
	if r.paymentStatus != PaymentStatusPending {
		return NewInvariantViolationError(
			fmt.Sprintf("支払い待ち以外の状態からは支払い完了にできません: %s", r.paymentStatus))
	}
	r.paymentStatus = PaymentStatusSucceeded
	r.amountPaid = r.registrationFee
	r.paymentRef = paymentRef
	next := nextBillingDate(now, r.billingDay)
	r.nextPaymentDate = &next
	r.updatedAt = now
	return r.validate()
}

// Activate は会員登録を有効化する。
// paymentStatusがsucceededでない場合は不変条件違反として失敗し、
// 暗黙に無視されることはない。
func (r *Registration) Activate(now time.Time) error {
	if r.paymentStatus != PaymentStatusSucceeded {
		return NewInvariantViolationError("支払い完了前の登録は有効化できません")
	}
	r.status = RegistrationStatusActive
	r.updatedAt = now
	return r.validate()
}

// Expire は次回支払日を過ぎた登録を期限切れにする。
func (r *Registration) Expire(now time.Time) error {
	if r.status == RegistrationStatusCancelled {
		return NewInvariantViolationError("取り消し済みの登録は期限切れにできません")
	}
	r.status = RegistrationStatusExpired
	r.updatedAt = now
	return r.validate()
}

// IsActive は登録が有効かを返す。
func (r *Registration) IsActive() bool { return r.status == RegistrationStatusActive }

// ID は登録IDを返す。
func (r *Registration) ID() string { return r.id }

// UserID は利用者IDを返す。
func (r *Registration) UserID() string { return r.userID }

// Status は登録状態を返す。
func (r *Registration) Status() RegistrationStatus { return r.status }

// PaymentStatus は支払い状態を返す。
func (r *Registration) PaymentStatus() PaymentStatus { return r.paymentStatus }

// Record は永続化用の平坦な表現を返す。
func (r *Registration) Record() RegistrationRecord {
	return RegistrationRecord{
		ID:              r.id,
		UserID:          r.userID,
		RegistrationFee: r.registrationFee,
		MonthlyFee:      r.monthlyFee,
		PaymentStatus:   r.paymentStatus,
		Status:          r.status,
		AmountPaid:      r.amountPaid,
		PaymentRef:      r.paymentRef,
		NextPaymentDate: r.nextPaymentDate,
		BillingDay:      r.billingDay,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
	}
}

// nextBillingDate はnowより後の直近の請求日（固定の日）を返す。
// 時刻は0時に正規化される。
func nextBillingDate(now time.Time, billingDay int) time.Time {
	year, month, _ := now.Date()
	candidate := time.Date(year, month, billingDay, 0, 0, 0, 0, now.Location())
	if !candidate.After(now) {
		// billingDayは28以下のため、翌月に繰り越しても日がずれることはない
		candidate = candidate.AddDate(0, 1, 0)
	}
	return candidate
}
