// Package identity は外部IdP（Identity Provider）への認証クライアントを提供する。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/authbridge/internal/model"
)

var (
	// ErrDenied はIdPが認証情報を拒否したことを表す。
	ErrDenied = errors.New("identity provider denied credentials")
	// ErrUnreachable はIdPへの到達失敗（タイムアウト、接続エラー、5xx）を表す。
	// 呼び出し側はユーザー向けにはErrDeniedと同一に扱うが、ログとメトリクスでは区別する。
	ErrUnreachable = errors.New("identity provider unreachable")
)

// Provider は外部IdPへの認証インターフェース。
type Provider interface {
	// Authenticate は認証情報をIdPに送信し、成功時はリモートプロフィールを返す。
	// 認証拒否はErrDenied、到達失敗はErrUnreachableでラップして返す。
	Authenticate(ctx context.Context, email, password string) (*model.RemoteProfile, error)
}

// HTTPProvider はHTTP API経由で外部IdPに認証するクライアント。
type HTTPProvider struct {
	httpClient *http.Client
	logger     *slog.Logger
	loginURL   string
	timeout    time.Duration
}

// NewHTTPProvider はHTTPProviderの新しいインスタンスを生成する。
// timeoutが0以下の場合はデフォルト値10秒を使用する。
func NewHTTPProvider(httpClient *http.Client, logger *slog.Logger, loginURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		httpClient: httpClient,
		logger:     logger,
		loginURL:   loginURL,
		timeout:    timeout,
	}
}

// loginRequest はIdPのログインエンドポイントへのリクエストボディ。
type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	KeepMeSignedIn bool   `json:"keepMeSignedIn"`
	IsOAuth        bool   `json:"isOAuth"`
}

// loginResponse はIdPのログインエンドポイントのレスポンス。
type loginResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    remoteUserData `json:"data"`
}

// remoteUserData はIdPが返すユーザープロフィール部分。
type remoteUserData struct {
	ID            json.Number `json:"id"`
	Email         string      `json:"email"`
	FirstName     string      `json:"firstName"`
	LastName      string      `json:"lastName"`
	RoleID        int         `json:"roleId"`
	Password      string      `json:"password"`
	Avatar        string      `json:"avatar"`
	ContactNumber string      `json:"contactNumber"`
	Timezone      string      `json:"timezone"`
}

// Authenticate は認証情報をIdPに送信し、成功時はリモートプロフィールを返す。
// 呼び出しには上限付きタイムアウトを適用する。
func (p *HTTPProvider) Authenticate(ctx context.Context, email, password string) (*model.RemoteProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(loginRequest{
		Email:          email,
		Password:       password,
		KeepMeSignedIn: true,
		IsOAuth:        false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.loginURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("IdPへの接続に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	// 認証拒否系のステータスはErrDenied、それ以外の非200はErrUnreachableとして扱う
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrDenied
	case resp.StatusCode != http.StatusOK:
		p.logger.Error("IdPがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrUnreachable, err)
	}

	var loginResp loginResponse
	if err := json.Unmarshal(body, &loginResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrUnreachable, err)
	}

	if !loginResp.Success {
		return nil, ErrDenied
	}

	return &model.RemoteProfile{
		ExternalID:    loginResp.Data.ID.String(),
		Email:         loginResp.Data.Email,
		FirstName:     loginResp.Data.FirstName,
		LastName:      loginResp.Data.LastName,
		RoleID:        loginResp.Data.RoleID,
		PasswordHash:  loginResp.Data.Password,
		Avatar:        loginResp.Data.Avatar,
		ContactNumber: loginResp.Data.ContactNumber,
		Timezone:      loginResp.Data.Timezone,
	}, nil
}

// compile-time interface check
var _ Provider = (*HTTPProvider)(nil)
