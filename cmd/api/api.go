package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smilepay/docs" //this is required to generate swagger docs
	"smilepay/internal/auth"
	"smilepay/internal/billing"
	"smilepay/internal/domain/deliveries"
	"smilepay/internal/domain/settlements"
	"smilepay/internal/ratelimiter"
	"smilepay/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	logger        *zap.SugaredLogger
	invoices      billing.InvoiceReader
	sessions      session.Store
	settlements   settlements.Store
	deliveries    deliveries.Store
	activity      billing.ActivityLogger
	issuer        *billing.Issuer
	reconciler    *billing.Reconciler
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	now           func() time.Time
}

type config struct {
	addr           string
	db             dbConfig
	env            string
	apiURL         string
	smilepay       smilepayConfig
	sessionBackend string
	lockBackend    string
	redisAddr      string
	kafka          kafkaConfig
	mail           mailConfig
	expo           expoConfig
	hashidsSalt    string
	auth           authConfig
	rateLimiter    ratelimiter.Config
}

type smilepayConfig struct {
	dcvc         string
	verifyKey    string
	roturl       string
	apiURL       string
	midParam     string
	digestPolicy string
	timeout      time.Duration
	methods      string
}

type kafkaConfig struct {
	brokers []string
	topic   string
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type expoConfig struct {
	accessToken string
	opsTokens   []string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	iss    string
}

type basicConfig struct {
	user     string
	passHash string
}

type dbConfig struct {
	addr         string
	maxOpenConns int
	maxIdleTime  string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// stays under the provider client timeout plus the ledger work
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		// SmilePay posts here; it has no credentials to present
		r.Route("/callbacks/smilepay", func(r chi.Router) {
			r.Get("/", app.smilepayCallbackHandler)
			r.Post("/", app.smilepayCallbackHandler)
		})

		r.Route("/invoices/{invoiceID}/smilepay", func(r chi.Router) {
			r.Use(app.RateLimiterMiddleware)
			r.Use(app.AuthTokenMiddleware)
			r.Post("/", app.issuePaymentCodeHandler)
			r.Get("/", app.getPaymentSessionHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.BasicAuthMiddleware())
			r.Get("/settlements", app.adminListSettlementsHandler)
			r.Get("/invoices/{invoiceID}/deliveries", app.adminListDeliveriesHandler)
			r.Post("/invoices/{invoiceID}/smilepay/reset", app.adminResetSessionHandler)
			r.Post("/callbacks/{deliveryID}/replay", app.adminReplayCallbackHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 90,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
