// Package session はセッション発行戦略を提供する。
// ストア型（不透明キー）と署名付きトークン型の2つの実装があり、
// デプロイ内で有効になるのは起動時に選択された1つのみ。
package session

import (
	"context"
	"errors"

	"github.com/hitoshi/authbridge/internal/model"
)

// ErrInvalidToken はトークン/セッションキーが無効または期限切れであることを表す。
var ErrInvalidToken = errors.New("invalid or expired token")

// Issuer はセッション発行のインターフェース。
type Issuer interface {
	// Issue はログイン成功したユーザーに対してセッション資格情報を発行する。
	Issue(ctx context.Context, user *model.User) (string, error)

	// Resolve はトークンを検証し、紐づくユーザーIDを返す。
	// 無効または期限切れの場合はErrInvalidTokenを返す。
	Resolve(ctx context.Context, token string) (string, error)

	// Revoke はトークンを失効させる。
	// 署名付きトークン戦略では失効リストを持たないため、no-opとなる。
	Revoke(ctx context.Context, token string) error

	// Strategy は戦略名（"store" または "token"）を返す。ログとメトリクス用。
	Strategy() string
}
