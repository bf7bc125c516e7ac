// Package auth は資格情報の検証と、署名付きIDトークンの発行・検証を提供する。
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken はトークンの検証に失敗した場合に返される。
// 署名不正・形式不正・期限切れのいずれであっても同じエラーになる。
var ErrInvalidToken = errors.New("invalid token")

// Claims はIDトークンのペイロード。
// 標準クレームのiat/expに加えてユーザーIDを保持する。
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// IssuedToken は発行済みトークンとその有効期間。
type IssuedToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenManager はHS256で署名したIDトークンを発行・検証する。
// サーバー側に状態を持たない。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret []byte, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock は現在時刻の取得関数を差し替えたTokenManagerを返す。
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *m
	cp.now = now
	return &cp
}

// IssueToken は指定ユーザーのIDトークンを発行する。
func (m *TokenManager) IssueToken(userID string) (*IssuedToken, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	value, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &IssuedToken{
		Value:     value,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyToken はトークンの署名と有効期限を検証し、クレームを返す。
// 失敗時は原因にかかわらずErrInvalidTokenをラップして返す。
func (m *TokenManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
