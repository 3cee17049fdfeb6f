package users

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/hitoshi/presence/internal/memo"
	"github.com/hitoshi/presence/internal/model"
)

// Directory はローカルのusers.xmlをメモ化して提供する。
type Directory struct {
	load   func() ([]model.User, error)
	logger *slog.Logger
}

// NewDirectory はpathのusers.xmlをcacheでメモ化するDirectoryを生成する。
func NewDirectory(cache *memo.Cache, path string, ttl time.Duration, logger *slog.Logger) *Directory {
	raw := func() ([]model.User, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open users xml: %w", err)
		}
		defer f.Close()
		return ParseXML(f)
	}

	return &Directory{
		load:   memo.Memoize(cache, "users.load", ttl, raw),
		logger: logger,
	}
}

// Users はユーザー一覧を返す。
// users.xmlが存在しない場合はUSERS_UNAVAILABLEのAPIErrorを返す。
func (d *Directory) Users(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users, err := d.load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("users xml not found", slog.String("error", err.Error()))
			return nil, model.NewUsersUnavailableError()
		}
		return nil, err
	}
	return users, nil
}
