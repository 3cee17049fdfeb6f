// Package dataset は在席記録データセットの読み込みとメモ化を提供する。
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/hitoshi/presence/internal/model"
)

// csvFields は有効な行の列数（user_id, date, start, end）。
const csvFields = 4

// ParseCSV は在席記録CSVを読み込み、従業員ごとのデータセットを返す。
// 列数が4でない行（ヘッダー・フッター）は無視する。
// 解析できない行はデバッグログを出力してスキップする。
func ParseCSV(r io.Reader, logger *slog.Logger) (model.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	ds := make(model.Dataset)
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Debug("skipping unparsable csv line",
					slog.Int("line", parseErr.Line),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		if len(row) != csvFields {
			continue
		}

		userID, date, p, err := parseRow(row)
		if err != nil {
			logger.Debug("skipping malformed presence row",
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
			continue
		}
		ds.Add(userID, date, p)
	}

	return ds, nil
}

// parseRow は1行分の列を解析する。
func parseRow(row []string) (int, model.Date, model.Presence, error) {
	userID, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return 0, model.Date{}, model.Presence{}, fmt.Errorf("invalid user id %q: %w", row[0], err)
	}
	if userID <= 0 {
		return 0, model.Date{}, model.Presence{}, fmt.Errorf("user id must be positive: %d", userID)
	}

	date, err := model.ParseDate(strings.TrimSpace(row[1]))
	if err != nil {
		return 0, model.Date{}, model.Presence{}, err
	}
	start, err := model.ParseTimeOfDay(strings.TrimSpace(row[2]))
	if err != nil {
		return 0, model.Date{}, model.Presence{}, err
	}
	end, err := model.ParseTimeOfDay(strings.TrimSpace(row[3]))
	if err != nil {
		return 0, model.Date{}, model.Presence{}, err
	}

	return userID, date, model.Presence{Start: start, End: end}, nil
}

// CSVSource はローカルのCSVファイルを読み込むSource。
type CSVSource struct {
	path   string
	logger *slog.Logger
}

// NewCSVSource はCSVSourceを生成する。
func NewCSVSource(path string, logger *slog.Logger) *CSVSource {
	return &CSVSource{path: path, logger: logger}
}

// Name はメトリクス・ログ用のソース名を返す。
func (s *CSVSource) Name() string {
	return "csv"
}

// Load はCSVファイル全体を読み込む。ファイルが存在しない場合はエラーを返す。
func (s *CSVSource) Load(ctx context.Context) (model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open presence csv: %w", err)
	}
	defer f.Close()

	return ParseCSV(f, s.logger)
}
