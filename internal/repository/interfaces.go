// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/authbridge/internal/model"
)

// ErrDuplicateUsername はusernameの一意制約違反を表す。
// 同時重複リクエストによる二重作成をサービス層で検知し、
// 再検索にフォールバックするために使用する。
var ErrDuplicateUsername = errors.New("username already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はusernameでユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はemailでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// usernameの一意制約に違反した場合はErrDuplicateUsernameを返す。
	// 作成直後のFindByEmail/FindByUsernameは作成済みレコードを観測できること
	// （create-then-reloadパターンの前提）。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はストア型セッションの永続化インターフェース。
// 有効期限はストア側で管理する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
