package users

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// UpdaterConfig はUpdaterの設定。
type UpdaterConfig struct {
	// SourceURL はダウンロード元のusers.xmlのURL。
	SourceURL string
	// DestPath は保存先のローカルファイルパス。
	DestPath string
	// Timeout はHTTPリクエストのタイムアウト。
	Timeout time.Duration
	// MaxSize はレスポンスボディの上限バイト数。
	MaxSize int64
}

// Updater はリモートのusers.xmlをダウンロードしてローカルファイルを置き換える。
type Updater struct {
	ssrfGuard SSRFValidator
	logger    *slog.Logger
	config    UpdaterConfig
}

// NewUpdater はUpdaterの新しいインスタンスを生成する。
func NewUpdater(ssrfGuard SSRFValidator, logger *slog.Logger, config UpdaterConfig) *Updater {
	return &Updater{
		ssrfGuard: ssrfGuard,
		logger:    logger,
		config:    config,
	}
}

// Update はusers.xmlをダウンロードし、解析に成功した場合のみローカルファイルを置き換える。
// 置き換えたファイルに含まれるユーザー数を返す。
func (u *Updater) Update(ctx context.Context) (int, error) {
	if u.config.SourceURL == "" {
		return 0, fmt.Errorf("users xml source URL is not configured")
	}

	if err := u.ssrfGuard.ValidateURL(u.config.SourceURL); err != nil {
		return 0, fmt.Errorf("users xml URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.config.SourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "PresenceAnalyzer/1.0")

	client := u.ssrfGuard.NewSafeClient(u.config.Timeout, u.config.MaxSize)
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download users xml: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("users xml download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.config.MaxSize+1))
	if err != nil {
		return 0, fmt.Errorf("failed to read users xml: %w", err)
	}
	if int64(len(body)) > u.config.MaxSize {
		return 0, fmt.Errorf("users xml exceeds %s", humanize.IBytes(uint64(u.config.MaxSize)))
	}

	// 壊れたファイルで既存のファイルを上書きしない
	parsed, err := ParseXML(bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	if err := writeFileAtomic(u.config.DestPath, body); err != nil {
		return 0, err
	}

	u.logger.Info("users xml updated",
		slog.String("path", u.config.DestPath),
		slog.Int("users", len(parsed)),
		slog.String("size", humanize.IBytes(uint64(len(body)))),
	)
	return len(parsed), nil
}

// writeFileAtomic は同じディレクトリの一時ファイルに書き込んでからリネームする。
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".users-*.xml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace users xml: %w", err)
	}
	return nil
}
