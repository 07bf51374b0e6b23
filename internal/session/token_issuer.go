package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/authbridge/internal/model"
)

// Claims は署名付きトークンに埋め込むクレーム。
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenIssuer はサーバー保持の秘密鍵でHS256署名したステートレストークンを発行する。
// ストアを持たないため、失効は有効期限切れのみで行われる。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer はTokenIssuerを生成する。
// ttlが0以下の場合はデフォルト値24時間を使用する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue はユーザーIDを埋め込んだ署名付きトークンを発行する。
func (i *TokenIssuer) Issue(_ context.Context, user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// Resolve はトークンの署名と有効期限を検証し、埋め込まれたユーザーIDを返す。
func (i *TokenIssuer) Resolve(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}

// Revoke はno-op。ステートレストークンは有効期限切れでのみ失効する。
func (i *TokenIssuer) Revoke(_ context.Context, _ string) error {
	return nil
}

// Strategy は戦略名を返す。
func (i *TokenIssuer) Strategy() string {
	return "token"
}

// compile-time interface check
var _ Issuer = (*TokenIssuer)(nil)
