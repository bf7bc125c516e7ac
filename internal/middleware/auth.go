// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに利用者を格納するためのキー。
var identityContextKey = contextKey("request_identity")

const bearerScheme = "bearer"

// TokenVerifier はIDトークンの検証に必要なインターフェース。
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// AuthFailureRecorder はアクセスガードでの拒否を記録する。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 利用者をリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない場合は"Authentication required"、
// 検証に失敗した場合は原因によらず"Invalid token"で401を返す。
func NewAuthMiddleware(verifier TokenVerifier, recorder AuthFailureRecorder) func(next http.Handler) http.Handler {
	reject := func(w http.ResponseWriter, reason string, apiErr *model.APIError) {
		if recorder != nil {
			recorder.RecordAuthFailure(reason)
		}
		WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present, ok := bearerToken(r)
			if !present {
				reject(w, "missing_token", model.NewAuthRequiredError())
				return
			}
			if !ok {
				reject(w, "invalid_token", model.NewInvalidTokenError())
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				slog.Debug("token verification failed",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				reject(w, "invalid_token", model.NewInvalidTokenError())
				return
			}

			noteLoggedUser(r, claims.UserID)
			ctx := ContextWithIdentity(r.Context(), model.RequestIdentity{UserID: claims.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
// presentはトークンが提示されたかどうか、okはBearer形式として解釈できたかどうかを返す。
func bearerToken(r *http.Request) (token string, present, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false, false
	}

	scheme, rest, _ := strings.Cut(header, " ")
	rest = strings.TrimSpace(rest)
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", true, false
	}
	if rest == "" {
		return "", false, false
	}
	return rest, true, true
}

// IdentityFromContext はリクエストコンテキストから利用者を取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.RequestIdentity, error) {
	identity, ok := ctx.Value(identityContextKey).(model.RequestIdentity)
	if !ok || identity.UserID == "" {
		return model.RequestIdentity{}, fmt.Errorf("request identity not found in context")
	}
	return identity, nil
}

// UserIDFromContext はリクエストコンテキストから利用者のユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return identity.UserID, nil
}

// ContextWithIdentity はコンテキストに利用者を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.RequestIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
