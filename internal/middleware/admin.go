package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/slotman/internal/model"
)

// UserFinder は利用者の検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// NewAdminOnlyMiddleware は認証済み利用者が管理者であることを検証する
// ミドルウェアを返す。セッションミドルウェアの後段に配置すること。
// 管理者でない利用者には403 Forbiddenを返す。
func NewAdminOnlyMiddleware(userFinder UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := userFinder.FindByID(r.Context(), userID)
			if err != nil {
				slog.Error("failed to find user for admin check",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if user == nil || !user.IsAdmin {
				apiErr := model.NewAdminRequiredError()
				WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
