// Package refresh はusers.xmlの定期更新ワーカーを提供する。
package refresh

import (
	"context"
	"log/slog"
	"time"
)

// XMLUpdater はusers.xmlを1回更新するインターフェース。
// users.Updaterが実装する。
type XMLUpdater interface {
	Update(ctx context.Context) (int, error)
}

// RefreshRecorder は更新結果を記録するインターフェース。
// metrics.Collectorが実装する。
type RefreshRecorder interface {
	RecordXMLRefresh(users int, err error)
}

// Scheduler はusers.xmlの定期更新を行う。
// 起動直後に1回更新し、以降はintervalごとに更新する。
// 失敗した場合は指数バックオフで早めに再試行する。
type Scheduler struct {
	updater  XMLUpdater
	recorder RefreshRecorder
	logger   *slog.Logger
	interval time.Duration

	consecutiveErrors int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewScheduler(updater XMLUpdater, recorder RefreshRecorder, logger *slog.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		updater:  updater,
		recorder: recorder,
		logger:   logger,
		interval: interval,
	}
}

// Start はコンテキストがキャンセルされるまで更新を繰り返す。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("users.xml更新スケジューラを開始しました",
		slog.Duration("interval", s.interval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("users.xml更新スケジューラを停止しました")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(NextDelay(s.consecutiveErrors, s.interval))
		}
	}
}

// RunOnce はusers.xmlを1回更新し、結果をログとメトリクスに記録する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	users, err := s.updater.Update(ctx)

	if s.recorder != nil {
		s.recorder.RecordXMLRefresh(users, err)
	}

	if err != nil {
		s.consecutiveErrors++
		s.logger.Error("users.xmlの更新に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", s.consecutiveErrors),
			slog.Duration("retry_in", NextDelay(s.consecutiveErrors, s.interval)),
		)
		return err
	}

	s.consecutiveErrors = 0
	s.logger.Info("users.xmlの更新が完了しました",
		slog.Int("users", users),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// ConsecutiveErrors は連続失敗回数を返す。
func (s *Scheduler) ConsecutiveErrors() int {
	return s.consecutiveErrors
}
