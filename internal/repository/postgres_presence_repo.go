package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/presence/internal/model"
)

// PostgresPresenceRepo はPostgreSQLを使用した出退勤記録リポジトリ。
type PostgresPresenceRepo struct {
	db *sql.DB
}

// NewPostgresPresenceRepo はPostgresPresenceRepoを生成する。
func NewPostgresPresenceRepo(db *sql.DB) *PostgresPresenceRepo {
	return &PostgresPresenceRepo{db: db}
}

// Name はデータソース名を返す。
func (r *PostgresPresenceRepo) Name() string {
	return "postgres"
}

// Load はpresenceテーブルの全行をDatasetとして返す。
// 日付と時刻はテキストで受け取り、CSVと同じパーサーで解釈する。
func (r *PostgresPresenceRepo) Load(ctx context.Context) (model.Dataset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id,
		        to_char(date, 'YYYY-MM-DD'),
		        to_char(start_time, 'HH24:MI:SS'),
		        to_char(end_time, 'HH24:MI:SS')
		 FROM presence
		 ORDER BY user_id, date`,
	)
	if err != nil {
		return nil, fmt.Errorf("出退勤記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	ds := make(model.Dataset)
	for rows.Next() {
		var userID int
		var rawDate, rawStart, rawEnd string
		if err := rows.Scan(&userID, &rawDate, &rawStart, &rawEnd); err != nil {
			return nil, fmt.Errorf("出退勤記録のスキャンに失敗しました: %w", err)
		}

		date, err := model.ParseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("不正な日付です (user_id=%d): %w", userID, err)
		}
		start, err := model.ParseTimeOfDay(rawStart)
		if err != nil {
			return nil, fmt.Errorf("不正な開始時刻です (user_id=%d): %w", userID, err)
		}
		end, err := model.ParseTimeOfDay(rawEnd)
		if err != nil {
			return nil, fmt.Errorf("不正な終了時刻です (user_id=%d): %w", userID, err)
		}

		ds.Add(userID, date, model.Presence{Start: start, End: end})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("出退勤記録の走査に失敗しました: %w", err)
	}

	return ds, nil
}

// UpsertDataset はデータセットを1トランザクションで書き込む。
// (user_id, date)が既存の場合は開始・終了時刻を上書きする。
func (r *PostgresPresenceRepo) UpsertDataset(ctx context.Context, ds model.Dataset) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO presence (user_id, date, start_time, end_time)
		 VALUES ($1, $2::date, $3::time, $4::time)
		 ON CONFLICT (user_id, date) DO UPDATE SET
		     start_time = EXCLUDED.start_time,
		     end_time = EXCLUDED.end_time,
		     updated_at = now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("ステートメントの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	count := 0
	for userID, records := range ds {
		for date, p := range records {
			if _, err := stmt.ExecContext(ctx, userID, date.String(), p.Start.String(), p.End.String()); err != nil {
				return 0, fmt.Errorf("出退勤記録の書き込みに失敗しました (user_id=%d, date=%s): %w", userID, date, err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return count, nil
}
