package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/repository"
)

// --- モック定義 ---

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func testUser() *model.User {
	return &model.User{
		ID:       "user-id-123",
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Role:     model.RoleUser,
	}
}

// --- StoreIssuer ---

func TestStoreIssuer_Issue_PersistsOpaqueKey(t *testing.T) {
	ctx := context.Background()

	var created *model.Session
	repo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}

	issuer := NewStoreIssuer(repo, 24*time.Hour)

	key, err := issuer.Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(key) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(key))
	}
	if created == nil {
		t.Fatal("expected session to be persisted")
	}
	if created.ID != key {
		t.Errorf("session ID = %q, want issued key %q", created.ID, key)
	}
	if created.UserID != "user-id-123" {
		t.Errorf("session UserID = %q, want %q", created.UserID, "user-id-123")
	}
	if created.ExpiresAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, should be ~24h in the future", created.ExpiresAt)
	}
}

func TestStoreIssuer_Issue_KeysAreUnique(t *testing.T) {
	ctx := context.Background()
	issuer := NewStoreIssuer(&mockSessionRepo{}, time.Hour)

	k1, err := issuer.Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	k2, err := issuer.Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if k1 == k2 {
		t.Error("expected distinct session keys")
	}
}

func TestStoreIssuer_Resolve_ValidKey_ReturnsUserID(t *testing.T) {
	ctx := context.Background()
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-id-123", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	issuer := NewStoreIssuer(repo, time.Hour)

	userID, err := issuer.Resolve(ctx, "some-session-key")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if userID != "user-id-123" {
		t.Errorf("userID = %q, want %q", userID, "user-id-123")
	}
}

func TestStoreIssuer_Resolve_ExpiredOrMissing_ReturnsErrInvalidToken(t *testing.T) {
	ctx := context.Background()
	// FindByIDは期限切れの場合nilを返す契約
	issuer := NewStoreIssuer(&mockSessionRepo{}, time.Hour)

	_, err := issuer.Resolve(ctx, "expired-key")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestStoreIssuer_Resolve_EmptyToken_ReturnsErrInvalidToken(t *testing.T) {
	issuer := NewStoreIssuer(&mockSessionRepo{}, time.Hour)

	_, err := issuer.Resolve(context.Background(), "")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestStoreIssuer_Revoke_DeletesSession(t *testing.T) {
	ctx := context.Background()

	var deleted string
	repo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	issuer := NewStoreIssuer(repo, time.Hour)

	if err := issuer.Revoke(ctx, "session-key-abc"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted != "session-key-abc" {
		t.Errorf("deleted = %q, want %q", deleted, "session-key-abc")
	}
}

func TestStoreIssuer_Strategy(t *testing.T) {
	issuer := NewStoreIssuer(&mockSessionRepo{}, time.Hour)
	if issuer.Strategy() != "store" {
		t.Errorf("Strategy() = %q, want %q", issuer.Strategy(), "store")
	}
}

// --- TokenIssuer ---

func TestTokenIssuer_IssueAndResolve_RoundTrip(t *testing.T) {
	ctx := context.Background()
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	userID, err := issuer.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if userID != "user-id-123" {
		t.Errorf("userID = %q, want %q", userID, "user-id-123")
	}
}

func TestTokenIssuer_Resolve_WrongSecret_ReturnsErrInvalidToken(t *testing.T) {
	ctx := context.Background()

	token, err := NewTokenIssuer("secret-a", time.Hour).Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = NewTokenIssuer("secret-b", time.Hour).Resolve(ctx, token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_Resolve_ExpiredToken_ReturnsErrInvalidToken(t *testing.T) {
	ctx := context.Background()
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	// NewTokenIssuerはttl<=0をデフォルトに置き換えるため、期限切れトークンを直接作る
	issuer.ttl = -time.Minute
	token, err := issuer.Issue(ctx, testUser())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = issuer.Resolve(ctx, token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_Resolve_GarbageToken_ReturnsErrInvalidToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	_, err := issuer.Resolve(context.Background(), "not.a.jwt")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuer_Revoke_IsNoOp(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	if err := issuer.Revoke(context.Background(), "any-token"); err != nil {
		t.Errorf("Revoke should be a no-op, got %v", err)
	}
}

func TestTokenIssuer_Strategy(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	if issuer.Strategy() != "token" {
		t.Errorf("Strategy() = %q, want %q", issuer.Strategy(), "token")
	}
}
