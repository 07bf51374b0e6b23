// Package notify はユーザー作成イベントのプロフィール通知を提供する。
// 通知APIクライアントと非同期ディスパッチャを含む。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Event はディスパッチ対象のユーザー作成イベント。
type Event struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

// Client は通知サービスのプロフィールAPIクライアント。
// 新規作成されたユーザーのプロフィールを通知サービス側に同期する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		token:      token,
	}
}

// profilePayload はプロフィール更新APIのリクエストボディ。
type profilePayload struct {
	Profile profileFields `json:"profile"`
}

type profileFields struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// UpsertProfile はユーザープロフィールを通知サービスに送信する。
// 2xx以外のステータスはエラーとして返す（リトライ判断は呼び出し元が行う）。
func (c *Client) UpsertProfile(ctx context.Context, event Event) error {
	endpoint, err := url.JoinPath(c.baseURL, "profiles", event.UserID)
	if err != nil {
		return fmt.Errorf("エンドポイントURLの構築に失敗しました: %w", err)
	}

	payload, err := json.Marshal(profilePayload{
		Profile: profileFields{
			Email:     event.Email,
			Username:  event.Username,
			Role:      event.Role,
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("通知APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("user_id", event.UserID),
		)
		return err
	}
	defer resp.Body.Close()

	// レスポンスボディは使わないが、コネクション再利用のため読み捨てる
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("通知APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("user_id", event.UserID),
		)
		return fmt.Errorf("通知APIがステータス %d を返しました", resp.StatusCode)
	}

	return nil
}
