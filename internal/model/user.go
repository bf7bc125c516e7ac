// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュで、APIレスポンスには含めない。
type User struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RequestIdentity はアクセスガードがトークン検証後にリクエストへ付与する利用者情報。
// 1リクエストの間だけ存在し、永続化しない。
type RequestIdentity struct {
	UserID string
}
