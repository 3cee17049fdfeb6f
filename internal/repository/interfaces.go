// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/presence/internal/model"
)

// PresenceRepository は出退勤記録の永続化インターフェース。
// dataset.Sourceとしても利用できる。
type PresenceRepository interface {
	// Name はデータソース名を返す。メトリクスとログのラベルに使用する。
	Name() string

	// Load は全従業員の出退勤記録を読み込む。
	Load(ctx context.Context) (model.Dataset, error)

	// UpsertDataset はデータセットを(user_id, date)単位で冪等に書き込み、書き込んだ件数を返す。
	UpsertDataset(ctx context.Context, ds model.Dataset) (int, error)
}
