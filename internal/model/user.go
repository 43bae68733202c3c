// Package model はドメインモデルを定義する。
package model

import "time"

// User はブログの登録ユーザーを表す。
// PasswordHashはbcryptハッシュとして保存され、平文パスワードは保持しない。
type User struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
