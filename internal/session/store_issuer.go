package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/repository"
)

// StoreIssuer は不透明セッションキーをセッションストアに永続化する発行戦略。
// キーの有効期限はストア側（expires_at）で管理される。
type StoreIssuer struct {
	sessionRepo repository.SessionRepository
	maxAge      time.Duration
}

// NewStoreIssuer はStoreIssuerを生成する。
// maxAgeが0以下の場合はデフォルト値24時間を使用する。
func NewStoreIssuer(sessionRepo repository.SessionRepository, maxAge time.Duration) *StoreIssuer {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &StoreIssuer{
		sessionRepo: sessionRepo,
		maxAge:      maxAge,
	}
}

// Issue は暗号的に安全な不透明キーを生成し、ユーザーに紐付けて永続化する。
func (i *StoreIssuer) Issue(ctx context.Context, user *model.User) (string, error) {
	key, err := generateSessionKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate session key: %w", err)
	}

	now := time.Now()
	sess := &model.Session{
		ID:        key,
		UserID:    user.ID,
		ExpiresAt: now.Add(i.maxAge),
		CreatedAt: now,
	}

	if err := i.sessionRepo.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	return key, nil
}

// Resolve はセッションキーを検証し、紐づくユーザーIDを返す。
func (i *StoreIssuer) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	sess, err := i.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return "", ErrInvalidToken
	}

	return sess.UserID, nil
}

// Revoke はセッションキーをストアから削除する。
func (i *StoreIssuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := i.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Strategy は戦略名を返す。
func (i *StoreIssuer) Strategy() string {
	return "store"
}

// generateSessionKey は暗号的に安全なセッションキーを生成する。
func generateSessionKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ Issuer = (*StoreIssuer)(nil)
