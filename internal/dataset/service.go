package dataset

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/presence/internal/memo"
	"github.com/hitoshi/presence/internal/model"
	"github.com/hitoshi/presence/internal/presence"
)

// Source は在席データセットの読み込み元。
// CSVSourceとrepository.PostgresPresenceRepoが実装する。
type Source interface {
	Name() string
	Load(ctx context.Context) (model.Dataset, error)
}

// LoadRecorder はデータセット読み込みの結果を記録するインターフェース。
// metrics.Collectorが実装する。
type LoadRecorder interface {
	RecordDatasetLoad(source string, duration time.Duration, err error)
}

// ServiceConfig はServiceの設定。
type ServiceConfig struct {
	// CacheTTL はデータセットを再読み込みするまでの時間（デフォルト: 600秒）。
	CacheTTL time.Duration
	// LoadTimeout は1回の読み込みの上限時間（デフォルト: 30秒）。
	LoadTimeout time.Duration
}

// DefaultServiceConfig はデフォルトの設定を返す。
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CacheTTL:    600 * time.Second,
		LoadTimeout: 30 * time.Second,
	}
}

// Service はメモ化されたデータセットへのアクセスを提供する。
type Service struct {
	load   func() (model.Dataset, error)
	logger *slog.Logger
}

// NewService はsourceの読み込みをcacheでメモ化したServiceを生成する。
// recorderはnilでもよい。
func NewService(cache *memo.Cache, source Source, recorder LoadRecorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultServiceConfig().LoadTimeout
	}

	raw := func() (model.Dataset, error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LoadTimeout)
		defer cancel()

		start := time.Now()
		ds, err := source.Load(ctx)
		if recorder != nil {
			recorder.RecordDatasetLoad(source.Name(), time.Since(start), err)
		}
		if err != nil {
			logger.Error("failed to load presence dataset",
				slog.String("source", source.Name()),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		logger.Info("presence dataset loaded",
			slog.String("source", source.Name()),
			slog.Int("employees", len(ds)),
			slog.Duration("duration", time.Since(start)),
		)
		return ds, nil
	}

	return &Service{
		load:   memo.Memoize(cache, "dataset.load", cfg.CacheTTL, raw),
		logger: logger,
	}
}

// Dataset はデータセット全体を返す。
// 返り値はキャッシュと共有されるため、呼び出し元は変更してはならない。
func (s *Service) Dataset(ctx context.Context) (model.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

// Employee は指定従業員の記録を返す。存在しない場合はAPIErrorを返す。
func (s *Service) Employee(ctx context.Context, userID int) (model.Records, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	records, ok := ds[userID]
	if !ok {
		s.logger.Debug("employee not found", slog.Int("user_id", userID))
		return nil, model.NewEmployeeNotFoundError(userID)
	}
	return records, nil
}

// dayKeyLayout はAllDaysとEmployeesOnで使う日付キーの形式（yymmdd）。
const dayKeyLayout = "060102"

// dayLabelLayout はAllDaysの表示用ラベルの形式（dd.mm.yy）。
const dayLabelLayout = "02.01.06"

// AllDays はデータセットに現れる全日付を返す。
// キーはyymmddの整数、値はdd.mm.yy形式のラベル。
func (s *Service) AllDays(ctx context.Context) (map[int]string, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	days := make(map[int]string)
	for _, records := range ds {
		for d := range records {
			t := d.Time()
			key := t.Year()%100*10000 + int(t.Month())*100 + t.Day()
			days[key] = t.Format(dayLabelLayout)
		}
	}
	return days, nil
}

// ParseDayKey はyymmdd形式の文字列を日付に変換する。
func ParseDayKey(raw string) (model.Date, error) {
	if len(raw) != len(dayKeyLayout) {
		return model.Date{}, model.NewInvalidDateError(raw)
	}
	t, err := time.Parse(dayKeyLayout, raw)
	if err != nil {
		return model.Date{}, model.NewInvalidDateError(raw)
	}
	return model.DateOf(t), nil
}

// EmployeesOn は指定日に在席していた従業員と、その日の在席時間（秒）を返す。
func (s *Service) EmployeesOn(ctx context.Context, date model.Date) (map[int]int, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	employees := make(map[int]int)
	for userID, records := range ds {
		if p, ok := records[date]; ok {
			employees[userID] = presence.IntervalSeconds(p.Start, p.End)
		}
	}
	return employees, nil
}
