// Command api serves the recsystem-facing surfaces of spec §4.6/§4.7: the
// WebSocket event stream recsystems connect to for new_article/
// article_interaction notifications, and the controller_rpc endpoint the
// CLI's feeds_list/feeds_load/recsystem_register/recsystem_refresh_token/
// status commands call against. Structured logging, env-driven
// configuration, and the health HTTP surface follow the teacher's cmd/api
// conventions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pulsefeed/internal/auth"
	"pulsefeed/internal/broker"
	brokermemory "pulsefeed/internal/broker/memory"
	"pulsefeed/internal/eventstream"
	"pulsefeed/internal/handler/http/requestid"
	"pulsefeed/internal/handler/http/respond"
	"pulsefeed/internal/handler/http/responsewriter"
	"pulsefeed/internal/infra/db"
	workerinfra "pulsefeed/internal/infra/worker"
	"pulsefeed/internal/observability/logging"
	"pulsefeed/internal/observability/metrics"
	"pulsefeed/internal/observability/tracing"
	"pulsefeed/internal/rpc/controlplane"
	"pulsefeed/internal/store"
	storememory "pulsefeed/internal/store/memory"
	storepostgres "pulsefeed/internal/store/postgres"
	"pulsefeed/internal/ws"
	pkgconfig "pulsefeed/pkg/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// recsystemTokenTTL is how long a recsystem_register/refresh_token token
// remains valid before the recsystem must request a new one.
const recsystemTokenTTL = 30 * 24 * time.Hour

var (
	errMissingBearerToken  = errors.New("missing bearer token")
	errInvalidToken        = errors.New("invalid token")
	errMultipleConnections = errors.New("multiple simultaneous connections...")
)

func main() {
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, logger)
	defer closeStore()

	b := brokermemory.New()
	if err := declareExchanges(b); err != nil {
		logger.Error("failed to declare exchanges", slog.Any("error", err))
		os.Exit(1)
	}

	secret := pkgconfig.GetEnvString("AUTH_JWT_SECRET", "")
	if secret == "" {
		logger.Error("AUTH_JWT_SECRET must be set")
		os.Exit(1)
	}
	issuer := auth.New([]byte(secret), recsystemTokenTTL)

	hub := eventstream.New()
	svc := &controlplane.Service{Store: st, Issuer: issuer}

	health := workerinfra.NewHealthServer(
		":"+strconv.Itoa(pkgconfig.GetEnvInt("HEALTH_PORT", 9092)), logger)
	go func() {
		if err := health.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	startMetricsServer(ctx, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Worker(ctx, broker.ExchangeEventStream, "", 0, eventstream.Handle(hub))
	})
	g.Go(func() error {
		return b.Serve(ctx, broker.ExchangeControllerRPC, controlplane.Handler(svc))
	})
	g.Go(func() error {
		return serveHTTP(ctx, issuer, hub, logger)
	})

	health.SetReady(true)
	logger.Info("api started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("api exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("api shut down cleanly")
}

func serveHTTP(ctx context.Context, issuer *auth.Issuer, hub *eventstream.Hub, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/recsystem", recsystemWebSocketHandler(issuer, hub, logger))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(pkgconfig.GetEnvInt("API_PORT", 8080)),
		Handler:      tracing.Middleware(requestid.Middleware(loggingMiddleware(logger, mux))),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // long-lived WebSocket connections
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api http server starting", slog.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// loggingMiddleware wraps every request with a request-ID-scoped logger
// (retrievable downstream via logging.FromContext) and logs the outcome
// once the handler returns, using responsewriter to capture the status
// code without the handler having to report it itself.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.WithRequestID(r.Context(), logger)
		ctx := logging.WithLogger(r.Context(), reqLogger)
		rw := responsewriter.Wrap(w)

		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))
		duration := time.Since(start)

		status := strconv.Itoa(rw.StatusCode())
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, status, duration, int(r.ContentLength), rw.BytesWritten())

		reqLogger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.StatusCode()),
			slog.Int("bytes", rw.BytesWritten()),
		)
	})
}

// recsystemWebSocketHandler implements spec §4.6 step 1-2: authenticate the
// recsystem's bearer token, reject a duplicate connection with 403 *before*
// upgrading (the original event.py grounding source checks
// connected_recsystems and returns (resp, 403) before ever calling
// websocket.accept() — once the 101 Switching Protocols response is sent,
// a JSON 403 body is no longer possible), then upgrade and hand the
// connection to the Hub for its lifetime.
func recsystemWebSocketHandler(issuer *auth.Issuer, hub *eventstream.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		token := bearerToken(r)
		if token == "" {
			respond.Error(w, http.StatusUnauthorized, errMissingBearerToken)
			return
		}
		claims, err := issuer.Verify(token)
		if err != nil || claims.Role != auth.RoleRecsystem {
			respond.Error(w, http.StatusUnauthorized, errInvalidToken)
			return
		}
		recsystemID := strconv.FormatInt(claims.RecsystemID, 10)

		conn, err := hub.Register(recsystemID)
		if err != nil {
			reqLogger.Info("recsystem rejected, already connected", slog.String("recsystem_id", recsystemID))
			respond.Error(w, http.StatusForbidden, errMultipleConnections)
			return
		}

		wsConn, err := ws.Accept(w, r)
		if err != nil {
			hub.Unregister(recsystemID, conn)
			reqLogger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		defer wsConn.Close()

		if err := hub.Serve(r.Context(), recsystemID, wsConn, conn); err != nil {
			reqLogger.Info("recsystem connection ended", slog.String("recsystem_id", recsystemID), slog.String("error", err.Error()))
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func declareExchanges(b broker.Broker) error {
	exchanges := []struct {
		name string
		kind broker.ExchangeKind
	}{
		{broker.ExchangeFeeds, broker.Direct},
		{broker.ExchangeArticles, broker.Direct},
		{broker.ExchangeImages, broker.Direct},
		{broker.ExchangeEventStream, broker.Fanout},
		{broker.ExchangeControllerRPC, broker.Direct},
	}
	for _, e := range exchanges {
		if err := b.DeclareExchange(e.name, e.kind); err != nil {
			return err
		}
	}
	return nil
}

func openStore(ctx context.Context, logger *slog.Logger) (store.Store, func()) {
	if pkgconfig.GetEnvString("STORE_BACKEND", "memory") != "postgres" {
		logger.Info("using in-memory document store")
		return storememory.New(), func() {}
	}

	database, err := db.Open(ctx)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("using postgres document store")
	return storepostgres.New(database), func() { _ = database.Close() }
}

func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// startMetricsServer exposes the process's observability/metrics series
// (eventstream connection/delivery counts, HTTP request metrics) on
// METRICS_PORT, matching cmd/worker's own dedicated metrics endpoint.
func startMetricsServer(ctx context.Context, logger *slog.Logger) {
	port := pkgconfig.GetEnvInt("METRICS_PORT", 9093)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
