package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleAdmin は管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "user"
)

// User はローカルユーザーレコードを表す。
// 外部IdPでの初回ログイン成功時に遅延作成される。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	ExternalID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser はHTTPレスポンスに含めてよいユーザー情報のビュー。
// パスワードハッシュは決して含めない。
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public はUserからサニタイズ済みビューを生成する。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsAdmin:   u.Role == RoleAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// RemoteProfile は外部IdPから返されるユーザープロフィール。
// 一時データであり、そのまま永続化されることはない（新規作成時にUserへマッピングするのみ）。
type RemoteProfile struct {
	ExternalID    string
	Email         string
	FirstName     string
	LastName      string
	RoleID        int
	PasswordHash  string
	Avatar        string
	ContactNumber string
	Timezone      string
}
