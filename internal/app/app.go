package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/hitoshi/sipa/internal/auth"
	"github.com/hitoshi/sipa/internal/config"
	"github.com/hitoshi/sipa/internal/database"
	"github.com/hitoshi/sipa/internal/directory"
	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/handler"
	"github.com/hitoshi/sipa/internal/hosting"
	"github.com/hitoshi/sipa/internal/logger"
	"github.com/hitoshi/sipa/internal/mailer"
	"github.com/hitoshi/sipa/internal/metrics"
	"github.com/hitoshi/sipa/internal/middleware"
	"github.com/hitoshi/sipa/internal/news"
	"github.com/hitoshi/sipa/internal/repository"
	"github.com/hitoshi/sipa/internal/security"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
	"github.com/hitoshi/sipa/internal/view"
	"github.com/hitoshi/sipa/internal/worker/cleanup"
)

// readPassword は端末からエコーなしでパスワードを読む。テストで差し替える。
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_FORMAT/LOG_LEVELに従ってロガーを再設定する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.Options{})

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.Options{
		Format: cfg.LogFormat,
		Level:  logger.ParseLevel(cfg.LogLevel),
	})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドは設定の読み込みをスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandHashPassword:
		return runHashPassword(w, os.Stderr)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// 外部サービスへの接続を準備し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. セッションストア
	store, closeStore, err := openSessionStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions := session.NewManager(store, session.Config{
		MaxAge:       time.Duration(cfg.SessionMaxAge) * time.Second,
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	})

	// 3. ディビジョンとユーザーバックエンド
	samples, err := division.ParseSampleUsers(cfg.SampleUsers)
	if err != nil {
		return fmt.Errorf("invalid SAMPLE_USERS: %w", err)
	}
	dir := directory.NewClient(directory.Config{
		URL:          cfg.LDAPURL,
		SearchBase:   cfg.LDAPSearchBase,
		BindDN:       cfg.LDAPBindDN,
		BindPassword: cfg.LDAPBindPassword,
		Timeout:      cfg.LDAPTimeout,
	})
	registry, err := division.NewDefaultRegistry(cfg.FallbackDivision, samples, dir, repository.NewUsageStore(db))
	if err != nil {
		return fmt.Errorf("failed to build division registry: %w", err)
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 5. 認証
	tokens := auth.NewRememberTokens(cfg.SessionSecret, cfg.RememberMaxAge)
	bridge := auth.NewBridge(registry, tokens, collector)

	// 6. ニュースとメール
	sanitizer := security.NewSanitizer()
	if cfg.NewsFeedURL != "" {
		if err := security.ValidateURL(cfg.NewsFeedURL); err != nil {
			return fmt.Errorf("invalid NEWS_FEED_URL: %w", err)
		}
	}
	newsService := news.NewService(news.Config{
		FeedURL: cfg.NewsFeedURL,
		Limit:   cfg.NewsLimit,
	}, security.NewOutboundClient(cfg.NewsTimeout), sanitizer)

	mail, err := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.SMTPTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure mailer: %w", err)
	}

	// 7. ユーザーデータベース（ホスティング）
	userDatabases, closeHosting, err := hosting.Open(ctx, cfg.HostingDatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open hosting database: %w", err)
	}
	defer closeHosting()

	// 8. ハンドラーとルーター
	renderer, err := view.New()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	h := handler.New(handler.Deps{
		Divisions:     registry,
		Auth:          bridge,
		Gauge:         usage.NewService(registry),
		News:          newsService,
		Directory:     dir,
		Accounts:      repository.NewPostgresAccountRepo(db),
		Mailer:        mail,
		Composer:      mailer.Composer{SupportAddress: cfg.MailSupportAddress, UserDomain: cfg.MailUserDomain},
		UserDatabases: userDatabases,
		Sanitizer:     sanitizer,
		Metrics:       collector,
		Renderer:      renderer,
		Config: handler.Config{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			SupportAddress: cfg.MailSupportAddress,
		},
		HealthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	})

	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Handler:        h,
		Sessions:       sessions,
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		TrustProxy:     cfg.TrustProxy,
		HSTS:           cfg.CookieSecure,
		MetricsHandler: metrics.Handler(reg),
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// openSessionStore はSESSION_STOREに応じたストアと、その解放関数を返す。
func openSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB) (session.Store, func(), error) {
	if cfg.SessionStore != "redis" {
		return session.NewPostgresStore(repository.NewPostgresSessionRepo(db)), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("redis session store connected", slog.String("addr", cfg.RedisAddr))

	return session.NewRedisStore(client), func() { client.Close() }, nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションを定期的に削除する。Redisストアでは有効期限で自動削除されるため不要。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore == "redis" {
		slog.Info("session store is redis, worker has nothing to do")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Ping(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	slog.Info("worker starting", slog.Duration("interval", job.Interval))

	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたはupで未適用分を適用し、downで1つ戻し、versionで現在のバージョンを出力する。
func runMigrate(cfg *config.Config, args []string) error {
	action, ok := ParseMigrateAction(args)
	if !ok {
		return fmt.Errorf("unknown migrate action %q (up, down or version)", args[0])
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("rolled back one migration")
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runHashPassword はパスワードを2回入力させ、SAMPLE_USERSに書けるbcryptハッシュを出力する。
func runHashPassword(w, prompt io.Writer) error {
	fmt.Fprint(prompt, "Password: ")
	first, err := readPassword()
	fmt.Fprintln(prompt)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(first) == 0 {
		return errors.New("password must not be empty")
	}

	fmt.Fprint(prompt, "Repeat: ")
	second, err := readPassword()
	fmt.Fprintln(prompt)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if !bytes.Equal(first, second) {
		return errors.New("passwords do not match")
	}

	hash, err := bcrypt.GenerateFromPassword(first, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = fmt.Fprintln(w, string(hash))
	return err
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
