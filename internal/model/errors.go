// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// Codeは機械判定可能な識別子であり、表示ロジックの分岐に使用する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, checkin, payment, league, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidQRCode        = "INVALID_QR_CODE"
	ErrCodeNoEligibleSlot       = "NO_ELIGIBLE_SLOT"
	ErrCodeNoSlotAvailable      = "NO_SLOT_AVAILABLE"
	ErrCodeLockTimeout          = "LOCK_TIMEOUT"
	ErrCodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	ErrCodeInvariantViolation   = "INVARIANT_VIOLATION"
	ErrCodeAlreadyVerified      = "ALREADY_VERIFIED"
	ErrCodeRegistrationNotFound = "REGISTRATION_NOT_FOUND"
	ErrCodeSlotNotFound         = "SLOT_NOT_FOUND"
	ErrCodeLeagueNotFound       = "LEAGUE_NOT_FOUND"
	ErrCodeLeagueClosed         = "LEAGUE_CLOSED"
	ErrCodeLeagueFull           = "LEAGUE_FULL"
	ErrCodeAlreadyJoined        = "ALREADY_JOINED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeAdminRequired        = "ADMIN_REQUIRED"
)

// NewInvariantViolationError は表現不変条件違反エラーを生成する。
// 業務上の失敗ではなくロジック上の欠陥を示し、操作は常に中断される。
// 違反した状態が永続化されることはない。
func NewInvariantViolationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeInvariantViolation,
		Message:  fmt.Sprintf("ドメイン不変条件に違反しました: %s", detail),
		Category: "system",
		Action:   "システム管理者に連絡してください。",
	}
}

// NewInvalidQRCodeError はQRコード不正エラーを生成する。
func NewInvalidQRCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQRCode,
		Message:  "QRコードを認識できませんでした。",
		Category: "validation",
		Action:   "施設に掲示されている正しいQRコードをスキャンしてください。",
	}
}

// NewNoEligibleSlotError は利用可能な制限区分のスロットが存在しないエラーを生成する。
func NewNoEligibleSlotError() *APIError {
	return &APIError{
		Code:     ErrCodeNoEligibleSlot,
		Message:  "ご利用いただけるタイムスロットがありません。",
		Category: "checkin",
		Action:   "スロットの利用条件（性別・所属区分）を確認してください。",
	}
}

// NewNoSlotAvailableError は現在時刻に適用可能なスロットがないエラーを生成する。
func NewNoSlotAvailableError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSlotAvailable,
		Message:  "現在チェックイン可能なタイムスロットがありません。",
		Category: "checkin",
		Action:   "スロットの開始時刻になってから再度お試しください。",
	}
}

// NewLockTimeoutError はロック取得タイムアウトエラーを生成する。
// 一時的なインフラ状態であり、呼び出し側が操作全体を再試行してよい。
func NewLockTimeoutError(resourceKey string) *APIError {
	return &APIError{
		Code:     ErrCodeLockTimeout,
		Message:  fmt.Sprintf("リソースの確保がタイムアウトしました: %s", resourceKey),
		Category: "system",
		Action:   "混雑しています。しばらく待ってから再度お試しください。",
	}
}

// NewAdminRequiredError は管理者権限が必要な操作への権限不足エラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "この操作には管理者権限が必要です。",
		Category: "authorization",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewConcurrencyConflictError は楽観ロックの再試行上限超過エラーを生成する。
func NewConcurrencyConflictError(resourceKey string) *APIError {
	return &APIError{
		Code:     ErrCodeConcurrencyConflict,
		Message:  fmt.Sprintf("他の処理と競合しました: %s", resourceKey),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAlreadyVerifiedError は支払い確認の重複エラーを生成する。
// 2回目以降の確認は冪等であり、状態の二重変更は行われない。
func NewAlreadyVerifiedError(registrationID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVerified,
		Message:  fmt.Sprintf("この登録の支払いはすでに確認済みです: %s", registrationID),
		Category: "payment",
		Action:   "登録状態を確認してください。",
	}
}

// NewRegistrationNotFoundError は会員登録未検出エラーを生成する。
func NewRegistrationNotFoundError(registrationID string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationNotFound,
		Message:  fmt.Sprintf("指定された会員登録が見つかりません: %s", registrationID),
		Category: "payment",
		Action:   "登録IDを確認してください。",
	}
}

// NewSlotNotFoundError はタイムスロット未検出エラーを生成する。
func NewSlotNotFoundError(slotID string) *APIError {
	return &APIError{
		Code:     ErrCodeSlotNotFound,
		Message:  fmt.Sprintf("指定されたタイムスロットが見つかりません: %s", slotID),
		Category: "validation",
		Action:   "スロットIDを確認してください。",
	}
}

// NewLeagueNotFoundError は大会未検出エラーを生成する。
func NewLeagueNotFoundError(leagueID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeagueNotFound,
		Message:  fmt.Sprintf("指定された大会が見つかりません: %s", leagueID),
		Category: "league",
		Action:   "大会IDを確認してください。",
	}
}

// NewLeagueClosedError は大会の参加登録を受け付けていないエラーを生成する。
func NewLeagueClosedError(leagueID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeagueClosed,
		Message:  fmt.Sprintf("この大会は参加登録を受け付けていません: %s", leagueID),
		Category: "league",
		Action:   "登録期間と大会の開催状況を確認してください。",
	}
}

// NewLeagueFullError は大会の定員超過エラーを生成する。
func NewLeagueFullError(leagueID string) *APIError {
	return &APIError{
		Code:     ErrCodeLeagueFull,
		Message:  fmt.Sprintf("この大会は定員に達しています: %s", leagueID),
		Category: "league",
		Action:   "キャンセル待ちについては管理者に問い合わせてください。",
	}
}

// NewAlreadyJoinedError は大会への重複参加登録エラーを生成する。
func NewAlreadyJoinedError(leagueID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyJoined,
		Message:  fmt.Sprintf("この大会にはすでに参加登録済みです: %s", leagueID),
		Category: "league",
		Action:   "参加登録の状況を確認してください。",
	}
}

// NewUserNotFoundError は利用者が見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "利用者が見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// 状態に一切触れる前に拒否される。
func NewValidationError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容が不正です: %s", detail),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}
