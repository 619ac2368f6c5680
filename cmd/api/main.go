package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"smilepay/internal/auth"
	"smilepay/internal/billing"
	"smilepay/internal/db"
	"smilepay/internal/domain/activity"
	"smilepay/internal/domain/storage"
	"smilepay/internal/lock"
	"smilepay/internal/mailer"
	"smilepay/internal/notifications"
	"smilepay/internal/ratelimiter"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/9ssi7/exponent"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
		fmt.Printf("Invalid %s, defaulting to %s\n", key, fallback)
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	enabled := false
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", enabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: getEnvInt("RATELIMITER_REQUESTS_COUNT", 50),
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

func loadConfig() config {
	return config{
		addr:   getEnv("ADDR", ":8080"),
		env:    getEnv("ENV", "development"),
		apiURL: getEnv("EXTERNAL_URL", "localhost:8080"),
		db: dbConfig{
			addr:         os.Getenv("DB_ADDR"),
			maxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 20),
			maxIdleTime:  getEnv("DB_MAX_IDLE_TIME", "15m"),
		},
		smilepay: smilepayConfig{
			dcvc:         os.Getenv("SMILEPAY_DCVC"),
			verifyKey:    os.Getenv("SMILEPAY_VERIFY_KEY"),
			roturl:       os.Getenv("SMILEPAY_ROTURL"),
			apiURL:       getEnv("SMILEPAY_API_URL", smilepay.DefaultAPIURL),
			midParam:     os.Getenv("SMILEPAY_MID_PARAM"),
			digestPolicy: getEnv("SMILEPAY_DIGEST_POLICY", string(billing.DigestWarn)),
			timeout:      getEnvDuration("SMILEPAY_TIMEOUT", smilepay.DefaultTimeout),
			methods:      getEnv("SMILEPAY_PAYMENT_METHODS", string(smilepay.MethodSetAll)),
		},
		sessionBackend: getEnv("SESSION_BACKEND", "table"),
		lockBackend:    getEnv("LOCK_BACKEND", "memory"),
		redisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		kafka: kafkaConfig{
			brokers: getEnvList("KAFKA_BROKERS"),
			topic:   getEnv("KAFKA_TOPIC", notifications.DefaultPaidTopic),
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      getEnvInt("SMTP_PORT", 587),
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("MAIL_FROM"),
		},
		expo: expoConfig{
			accessToken: os.Getenv("EXPO_ACCESS_TOKEN"),
			opsTokens:   getEnvList("OPS_PUSH_TOKENS"),
		},
		hashidsSalt: getEnv("HASHIDS_SALT", "smilepay-receipts"),
		auth: authConfig{
			basic: basicConfig{
				user:     os.Getenv("AUTH_BASIC_USER"),
				passHash: os.Getenv("AUTH_BASIC_PASS_HASH"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				iss:    getEnv("AUTH_TOKEN_ISS", "smilepay-billing"),
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel)

	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

//	@title			SmilePay Billing API
//	@description	SmilePay ATM and convenience store payment codes for invoices, and the provider callback.

//	@contact.name	API Support
//	@contact.email	billing-support@example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading configuration from the environment")
	}
	cfg := loadConfig()

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	pool, err := db.New(cfg.db.addr, int32(cfg.db.maxOpenConns), cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, pool)
	cancel()
	if err != nil {
		logger.Fatal(err)
	}

	store := storage.NewContainer(pool)
	recorder := activity.NewRecorder(store.Activity, logger)

	var sessions session.Store = store.Sessions
	if cfg.sessionBackend == "notes" {
		sessions = session.NewNotesStore(store.Invoices, time.Now)
	}
	logger.Infow("payment session backend", "backend", cfg.sessionBackend)

	locker, closeLocker := newLocker(cfg, pool, logger)
	defer closeLocker()

	// SmilePay
	creds := smilepay.Credentials{
		Dcvc:      cfg.smilepay.dcvc,
		VerifyKey: cfg.smilepay.verifyKey,
		Roturl:    cfg.smilepay.roturl,
	}
	if !creds.Complete() {
		logger.Warn("SMILEPAY_DCVC or SMILEPAY_VERIFY_KEY is not set; payment codes cannot be issued")
	}
	methods, err := smilepay.ParseMethodSet(cfg.smilepay.methods)
	if err != nil {
		logger.Fatal(err)
	}
	digestPolicy, err := billing.ParseDigestPolicy(cfg.smilepay.digestPolicy)
	if err != nil {
		logger.Fatal(err)
	}

	client := smilepay.NewClient(creds, cfg.smilepay.apiURL, cfg.smilepay.timeout)
	issuer := billing.NewIssuer(sessions, client, creds, methods, locker, recorder, logger)

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()

	reconciler := billing.NewReconciler(billing.ReconcilerConfig{
		MerchantParam:   cfg.smilepay.midParam,
		DigestPolicy:    digestPolicy,
		AmountTolerance: decimal.RequireFromString("0.01"),
	}, store.Invoices, store.Ledger(), notifier, recorder, logger)

	app := &application{
		config:        cfg,
		logger:        logger,
		invoices:      store.Invoices,
		sessions:      sessions,
		settlements:   store.Settlements,
		deliveries:    store.Deliveries,
		activity:      recorder,
		issuer:        issuer,
		reconciler:    reconciler,
		authenticator: auth.NewJWTAuthenticator(cfg.auth.token.secret, cfg.auth.token.iss, cfg.auth.token.iss),
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			cfg.rateLimiter.RequestsPerTimeFrame,
			cfg.rateLimiter.TimeFrame,
		),
		now: time.Now,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]int64{
			"total_conns":    int64(s.TotalConns()),
			"idle_conns":     int64(s.IdleConns()),
			"acquired_conns": int64(s.AcquiredConns()),
			"acquire_count":  s.AcquireCount(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

func newLocker(cfg config, pool *pgxpool.Pool, logger *zap.SugaredLogger) (billing.Locker, func()) {
	switch cfg.lockBackend {
	case "postgres":
		logger.Info("issuance lock: postgres advisory locks")
		return lock.NewPostgres(pool, logger), func() {}
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		logger.Infow("issuance lock: redis", "addr", cfg.redisAddr)
		return lock.NewRedis(rdb, cfg.smilepay.timeout+30*time.Second, logger), func() { rdb.Close() }
	default:
		logger.Info("issuance lock: in-process")
		return lock.NewMemory(), func() {}
	}
}

// newNotifier registers every channel that has configuration.
func newNotifier(cfg config, logger *zap.SugaredLogger) (billing.Notifier, func()) {
	multi := notifications.NewMulti(logger)
	closers := []func(){}

	if cfg.mail.host != "" {
		receipts, err := notifications.NewReceiptNumbers(cfg.hashidsSalt)
		if err != nil {
			logger.Fatal(err)
		}
		smtp := mailer.NewSMTP(cfg.mail.host, cfg.mail.port, cfg.mail.username, cfg.mail.password, cfg.mail.fromEmail)
		multi.Add("email", notifications.NewEmail(smtp, receipts))
	}

	if len(cfg.expo.opsTokens) > 0 {
		expo := exponent.NewClient(exponent.WithAccessToken(cfg.expo.accessToken))
		multi.Add("push", notifications.NewOpsPush(notifications.NewExpoAdapter(expo), cfg.expo.opsTokens))
	}

	if len(cfg.kafka.brokers) > 0 {
		producer, err := notifications.NewSyncProducer(cfg.kafka.brokers)
		if err != nil {
			logger.Errorw("kafka producer unavailable, invoice.paid events disabled", "err", err)
		} else {
			pub := notifications.NewPublisher(producer, cfg.kafka.topic)
			multi.Add("kafka", pub)
			closers = append(closers, func() { pub.Close() })
		}
	}

	logger.Infow("payment notifications", "channels", multi.Len())
	return multi, func() {
		for _, c := range closers {
			c()
		}
	}
}
