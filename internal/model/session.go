package model

import "time"

// Session はストア型セッション（不透明キー）の1レコードを表す。
// 有効期限はストア側（expires_at）で管理する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
