package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/authbridge/internal/metrics"
	"github.com/hitoshi/authbridge/internal/model"
)

const (
	// initialRetryDelay はリトライの初回遅延。
	initialRetryDelay = 1 * time.Second
	// maxRetryDelay はリトライの最大遅延。
	maxRetryDelay = 1 * time.Minute
)

// ProfileSender はプロフィール通知の送信インターフェース。
type ProfileSender interface {
	UpsertProfile(ctx context.Context, event Event) error
}

// Dispatcher はユーザー作成イベントをバックグラウンドで通知サービスに送信する。
// 送信はログイン処理の成否に影響しない（fire-and-forget）。
// キューが満杯の場合、イベントは破棄される。
type Dispatcher struct {
	sender     ProfileSender
	logger     *slog.Logger
	collector  *metrics.Collector
	queue      chan Event
	maxRetries int
	baseDelay  time.Duration // テスト用に短縮可能
	maxDelay   time.Duration
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
// queueSizeが0以下の場合は256、maxRetriesが0以下の場合は5を使用する。
func NewDispatcher(sender ProfileSender, logger *slog.Logger, collector *metrics.Collector, queueSize, maxRetries int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Dispatcher{
		sender:     sender,
		logger:     logger,
		collector:  collector,
		queue:      make(chan Event, queueSize),
		maxRetries: maxRetries,
		baseDelay:  initialRetryDelay,
		maxDelay:   maxRetryDelay,
	}
}

// EnqueueUserCreated はユーザー作成イベントをキューに積む。
// ブロックせず、キューが満杯の場合はイベントを破棄して警告を記録する。
func (d *Dispatcher) EnqueueUserCreated(user *model.User) {
	event := Event{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
	}

	select {
	case d.queue <- event:
	default:
		d.collector.RecordNotifyDropped()
		d.logger.Warn("通知キューが満杯のためイベントを破棄しました",
			slog.String("user_id", event.UserID),
		)
	}
}

// Start はディスパッチループを起動する。
// コンテキストがキャンセルされるまでキューからイベントを取り出して送信する。
// キャンセル後はキューに残ったイベントをリトライなしで送信してから終了する。
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("通知ディスパッチャを開始しました",
		slog.Int("queue_size", cap(d.queue)),
		slog.Int("max_retries", d.maxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("通知ディスパッチャを停止しました")
			return
		case event := <-d.queue:
			d.dispatch(ctx, event)
		}
	}
}

// dispatch は指数バックオフ付きリトライでイベントを送信する。
// 初回1秒、2倍ずつ増加、最大1分。リトライ上限到達で諦める。
func (d *Dispatcher) dispatch(ctx context.Context, event Event) {
	var lastErr error

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.collector.RecordNotifyFailure()
				return
			case <-time.After(d.retryDelay(attempt - 1)):
			}
		}

		if lastErr = d.sender.UpsertProfile(ctx, event); lastErr == nil {
			d.collector.RecordNotifySuccess()
			return
		}
	}

	d.collector.RecordNotifyFailure()
	d.logger.Error("通知の送信をリトライ上限到達のため諦めました",
		slog.String("user_id", event.UserID),
		slog.Int("attempts", d.maxRetries),
		slog.String("error", lastErr.Error()),
	)
}

// drain は停止時にキューへ残ったイベントを1回ずつ送信する。
// リトライは行わず、失敗したイベントは破棄する。
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case event := <-d.queue:
			if err := d.sender.UpsertProfile(ctx, event); err != nil {
				d.collector.RecordNotifyFailure()
				d.logger.Warn("停止時の通知送信に失敗しました",
					slog.String("user_id", event.UserID),
					slog.String("error", err.Error()),
				)
			} else {
				d.collector.RecordNotifySuccess()
			}
		default:
			return
		}
	}
}

// retryDelay はリトライ回数に基づいて指数バックオフ遅延を計算する。
func (d *Dispatcher) retryDelay(retries int) time.Duration {
	delay := d.baseDelay
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > d.maxDelay {
			return d.maxDelay
		}
	}
	return delay
}
