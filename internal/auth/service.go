// Package auth はログインワークフローとセッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/authbridge/internal/identity"
	"github.com/hitoshi/authbridge/internal/metrics"
	"github.com/hitoshi/authbridge/internal/model"
	"github.com/hitoshi/authbridge/internal/password"
	"github.com/hitoshi/authbridge/internal/repository"
	"github.com/hitoshi/authbridge/internal/session"
)

// adminRoleIDs は外部IdPのロールIDのうち管理者にマッピングするもの。
var adminRoleIDs = map[int]bool{
	2:  true,
	11: true,
}

// ProfileNotifier はユーザー作成時のプロフィール通知を非同期で送信するインターフェース。
type ProfileNotifier interface {
	EnqueueUserCreated(user *model.User)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	DisableLogin bool // trueの場合、全ログイン試行を拒否する
}

// LoginResult はログイン成功時の結果を表す。
type LoginResult struct {
	User     *model.User
	Token    string
	Strategy string // "store" または "token"
}

// Service はログインワークフローのビジネスロジックを提供する。
// 外部IdPでの認証成功後、ローカルユーザーを遅延作成し、
// ローカルのパスワードハッシュ照合を経てセッションを発行する。
type Service struct {
	provider  identity.Provider
	userRepo  repository.UserRepository
	issuer    session.Issuer
	notifier  ProfileNotifier
	collector *metrics.Collector
	config    ServiceConfig
}

// NewService はServiceを生成する。
// notifierはnilを許容する（通知無効時）。
func NewService(
	provider identity.Provider,
	userRepo repository.UserRepository,
	issuer session.Issuer,
	notifier ProfileNotifier,
	collector *metrics.Collector,
	config ServiceConfig,
) *Service {
	return &Service{
		provider:  provider,
		userRepo:  userRepo,
		issuer:    issuer,
		notifier:  notifier,
		collector: collector,
		config:    config,
	}
}

// Login はログインワークフロー全体を実行する。
// 入力検証 → IdP認証 → ローカルユーザー解決（必要なら遅延作成）→
// パスワード照合 → セッション発行の順に処理する。
// 認証失敗の原因（IdP拒否、ユーザー不在、パスワード不一致、IdP障害）は
// ユーザー名の存在有無を推測されないよう、すべて同一の認証エラーに集約する。
// IdPにはユーザーが入力した識別子（メールアドレス）をそのまま送信する。
func (s *Service) Login(ctx context.Context, username, plainPassword string) (*LoginResult, error) {
	if s.config.DisableLogin {
		s.collector.RecordLoginFailure("disabled")
		return nil, model.NewLoginDisabledError()
	}

	if username == "" || plainPassword == "" {
		s.collector.RecordLoginFailure("validation")
		return nil, model.NewValidationError("ユーザー名とパスワードは必須です")
	}

	s.collector.RecordLoginAttempt()

	// 1. 外部IdPで認証（DISABLE_LOGIN時はここに到達しない）
	start := time.Now()
	profile, err := s.provider.Authenticate(ctx, username, plainPassword)
	s.collector.RecordProviderLatency(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDenied):
			s.collector.RecordLoginFailure("unauthorized")
			return nil, model.NewUnauthorizedError()
		case errors.Is(err, identity.ErrUnreachable):
			// 到達失敗はメトリクスとログでは区別するが、レスポンスは認証失敗と同一にする
			s.collector.RecordProviderOutage()
			s.collector.RecordLoginFailure("unauthorized")
			slog.Warn("IdPに到達できないためログインを拒否しました",
				slog.String("error", err.Error()),
			)
			return nil, model.NewUnauthorizedError()
		default:
			s.collector.RecordLoginFailure("unavailable")
			slog.Error("IdP認証呼び出しに失敗しました",
				slog.String("error", err.Error()),
			)
			return nil, model.NewUnavailableError()
		}
	}

	// 2. ローカルユーザーを解決（未登録なら遅延作成）
	user, err := s.resolveUser(ctx, username, profile)
	if err != nil {
		s.collector.RecordLoginFailure("unavailable")
		slog.Error("ローカルユーザーの解決に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnavailableError()
	}

	// 3. ローカルのパスワードハッシュと照合
	if err := password.Verify(user.PasswordHash, plainPassword); err != nil {
		s.collector.RecordLoginFailure("unauthorized")
		slog.Info("パスワード照合に失敗しました",
			slog.String("user_id", user.ID),
		)
		return nil, model.NewUnauthorizedError()
	}

	// 4. セッションを発行
	token, err := s.issuer.Issue(ctx, user)
	if err != nil {
		s.collector.RecordLoginFailure("unavailable")
		slog.Error("セッションの発行に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnavailableError()
	}

	s.collector.RecordLoginSuccess()
	slog.Info("ログインに成功しました",
		slog.String("user_id", user.ID),
		slog.String("strategy", s.issuer.Strategy()),
	)

	return &LoginResult{
		User:     user,
		Token:    token,
		Strategy: s.issuer.Strategy(),
	}, nil
}

// CurrentUser はセッショントークンから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.issuer.Resolve(ctx, token)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// Logout はセッションを失効させる。
// トークン戦略の場合は失効ストアを持たないためno-opとなる。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.issuer.Revoke(ctx, token); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// resolveUser は入力された識別子でローカルユーザーを検索し、
// 未登録の場合はIdPプロフィールから遅延作成する。
// 検索はユーザー名 → メールアドレスの順で行う。
func (s *Service) resolveUser(ctx context.Context, identifier string, profile *model.RemoteProfile) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = s.userRepo.FindByEmail(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user != nil {
		return user, nil
	}

	email := profile.Email
	if email == "" {
		email = identifier
	}

	return s.provisionUser(ctx, email, profile)
}

// provisionUser はIdPプロフィールからローカルユーザーを新規作成する。
// ユーザー名はメールアドレスのローカル部とし、衝突時は外部IDを連結する。
// 並行リクエストで同一ユーザーが同時作成された場合（一意制約違反）は
// 既存レコードを引き直して返す。
func (s *Service) provisionUser(ctx context.Context, email string, profile *model.RemoteProfile) (*model.User, error) {
	username := localPart(email)

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		username = username + profile.ExternalID
	}

	role := model.RoleUser
	if adminRoleIDs[profile.RoleID] {
		role = model.RoleAdmin
	}

	now := time.Now()
	newUser := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: profile.PasswordHash,
		Role:         role,
		ExternalID:   profile.ExternalID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			// 並行作成に負けた場合は勝者のレコードを使う
			winner, findErr := s.userRepo.FindByEmail(ctx, email)
			if findErr != nil {
				return nil, fmt.Errorf("failed to refetch user after duplicate: %w", findErr)
			}
			if winner != nil {
				return winner, nil
			}
			return nil, fmt.Errorf("duplicate username but user not found: %w", err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.collector.RecordUserProvisioned()
	slog.Info("ローカルユーザーを遅延作成しました",
		slog.String("user_id", newUser.ID),
		slog.String("username", newUser.Username),
		slog.String("role", string(newUser.Role)),
	)

	// 作成イベントを非同期通知（失敗してもログイン結果には影響しない）
	if s.notifier != nil {
		s.notifier.EnqueueUserCreated(newUser)
	}

	return newUser, nil
}

// localPart はメールアドレスの@より前の部分を返す。
func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
