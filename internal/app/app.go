package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/hitoshi/presence/internal/config"
	"github.com/hitoshi/presence/internal/database"
	"github.com/hitoshi/presence/internal/dataset"
	"github.com/hitoshi/presence/internal/handler"
	"github.com/hitoshi/presence/internal/logger"
	"github.com/hitoshi/presence/internal/memo"
	"github.com/hitoshi/presence/internal/metrics"
	"github.com/hitoshi/presence/internal/middleware"
	"github.com/hitoshi/presence/internal/repository"
	"github.com/hitoshi/presence/internal/security"
	"github.com/hitoshi/presence/internal/users"
	"github.com/hitoshi/presence/internal/worker/refresh"
)

const (
	datasetLoadTimeout = 30 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーも構造化ログで出せるようにする
		logger.SetupDefault(w, nil)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("data_source", cfg.DataSource),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, args)
	case CommandImport:
		return runImport(ctx, cfg, args)
	case CommandUpdateXML:
		return runUpdateXML(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// データソースを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// USERS_XML_URLが設定されている場合はusers.xmlの定期更新も同じプロセスで行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	router, limiter := buildHandler(cfg, source, collector, reg, slog.Default())
	defer limiter.Stop()

	if cfg.UsersXMLURL != "" {
		go newRefreshScheduler(cfg, collector).Start(ctx)
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	return serve(ctx, ln, router)
}

// buildHandler は共有キャッシュ・データセットサービス・ユーザーディレクトリを構築し、
// ルーターとレートリミッターを返す。呼び出し側はレートリミッターをStopすること。
func buildHandler(
	cfg *config.Config,
	source dataset.Source,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	log *slog.Logger,
) (http.Handler, *middleware.RateLimiter) {
	cache := memo.New(memo.WithObserver(collector))

	presenceService := dataset.NewService(cache, source, collector, log, dataset.ServiceConfig{
		CacheTTL:    cfg.CacheTTL,
		LoadTimeout: datasetLoadTimeout,
	})
	directory := users.NewDirectory(cache, cfg.DataXML, cfg.CacheTTL, log)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPerMin), log)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		PresenceService:   presenceService,
		UserDirectory:     directory,
		MetricsHandler:    metrics.Handler(gatherer),
	})

	return router, limiter
}

// serve はlnでHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	server := &http.Server{
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", ln.Addr().String()),
		)
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// openSource はDATA_SOURCEに応じたデータセットの読み込み元を返す。
// 返却されるclose関数は必ず呼び出すこと。
func openSource(ctx context.Context, cfg *config.Config) (dataset.Source, func(), error) {
	if cfg.DataSource != config.DataSourcePostgres {
		slog.Info("using csv data source", slog.String("path", cfg.DataCSV))
		return dataset.NewCSVSource(cfg.DataCSV, slog.Default()), func() {}, nil
	}

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresPresenceRepo(db), func() { db.Close() }, nil
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Connect(ctx, databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(databaseURL)),
	)
	return db, nil
}

// runWorker はワーカーモードで起動する。
// users.xmlの定期更新スケジューラをシグナル受信まで実行し、
// 更新結果のメトリクスをSERVER_PORTの /metrics で公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.UsersXMLURL == "" {
		return fmt.Errorf("required environment variables are not set: [USERS_XML_URL]")
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return worker(ctx, cfg, ln)
}

// worker はlnで /health と /metrics を提供しながら更新スケジューラを実行する。
// ctxがキャンセルされるとサーバーとスケジューラの両方の停止を待って戻る。
func worker(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.XMLRefreshInterval),
		slog.String("dest", cfg.DataXML),
		slog.String("metrics_addr", ln.Addr().String()),
	)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		newRefreshScheduler(cfg, collector).Start(ctx)
	}()

	err := serve(ctx, ln, handler.NewWorkerRouter(slog.Default(), collector, metrics.Handler(reg)))
	cancel()
	<-done

	if err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runUpdateXML はusers.xmlを1回だけ更新する。
func runUpdateXML(ctx context.Context, cfg *config.Config) error {
	n, err := newUpdater(cfg).Update(ctx)
	if err != nil {
		return fmt.Errorf("users xml update failed: %w", err)
	}

	slog.Info("users xml update completed", slog.Int("users", n))
	return nil
}

func newUpdater(cfg *config.Config) *users.Updater {
	return users.NewUpdater(security.NewSSRFGuard(), slog.Default(), users.UpdaterConfig{
		SourceURL: cfg.UsersXMLURL,
		DestPath:  cfg.DataXML,
		Timeout:   cfg.XMLFetchTimeout,
		MaxSize:   cfg.XMLMaxSize,
	})
}

func newRefreshScheduler(cfg *config.Config, recorder refresh.RefreshRecorder) *refresh.Scheduler {
	return refresh.NewScheduler(newUpdater(cfg), recorder, slog.Default(), cfg.XMLRefreshInterval)
}

// runMigrate はデータベースマイグレーションを実行する。
// 通常はすべての未適用マイグレーションを順番に適用し、"migrate down"では直近の1つを戻す。
func runMigrate(cfg *config.Config, args []string) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	if len(args) > 1 && args[1] == "down" {
		slog.Info("rolling back database migration",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		version, err := database.RollbackMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migration rolled back", slog.Uint64("version", uint64(version)))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runImport はCSVファイルを読み込み、presenceテーブルへ冪等に書き込む。
// パスは引数で指定でき、省略時はDATA_CSVを使う。
func runImport(ctx context.Context, cfg *config.Config, args []string) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	path := cfg.DataCSV
	if len(args) > 1 {
		path = args[1]
	}

	ds, err := dataset.NewCSVSource(path, slog.Default()).Load(ctx)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repository.NewPostgresPresenceRepo(db).UpsertDataset(ctx, ds)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	slog.Info("presence data imported",
		slog.String("path", path),
		slog.Int("users", len(ds)),
		slog.Int("rows", n),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

// checkHealth は/healthエンドポイントにHTTPリクエストを送り、200以外をエラーとする。
func checkHealth(healthURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(healthURL)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
