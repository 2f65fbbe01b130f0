package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cascade/internal/audit"
	"cascade/internal/auth"
	"cascade/internal/eventing"
	eventingmem "cascade/internal/eventing/infrastructure/memory"
	eventingrepo "cascade/internal/eventing/infrastructure/postgres"
	"cascade/internal/observability/metrics"
	"cascade/internal/stream/application"
	stream "cascade/internal/stream/domain"
	streammem "cascade/internal/stream/infrastructure/memory"
	streamrepo "cascade/internal/stream/infrastructure/postgres"
	streaminterfaces "cascade/internal/stream/interfaces"
	streamhttp "cascade/internal/stream/interfaces/http"
	streamnotify "cascade/internal/stream/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const devJWTSecret = "cascade-dev-secret"

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	streamCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("stream config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("runtime error: %v", err)
	}
	defer rt.Close()

	metrics.Init(rt.db, logger)

	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(application.EventSamples()...)
	dispatcher := eventing.NewDispatcher(bus, rt.outbox, registry, rt.dlq)
	publisher := eventing.NewPublisher(rt.outbox, dispatcher, logger)

	activityRecorder, err := application.NewActivityRecorder(rt.activity)
	if err != nil {
		logger.Fatalf("activity recorder error: %v", err)
	}
	activityConsumer, err := streaminterfaces.NewActivityConsumer(activityRecorder)
	if err != nil {
		logger.Fatalf("activity consumer error: %v", err)
	}
	activityConsumer.Register(bus, rt.processed)
	if cfg.EventLog {
		eventLogger := streaminterfaces.NewLoggingPublisher(logger)
		for _, sample := range application.EventSamples() {
			eventing.Subscribe(bus, eventing.EventType(sample), "stream.log", eventLogger.Publish, nil)
		}
	}

	controller, err := application.NewController(rt.ledger,
		application.WithPublisher(streaminterfaces.NewOutboxPublisher(publisher, "http")),
		application.WithPolicy(streamCfg.Policy()),
		application.WithCASRetries(streamCfg.CASRetries),
		application.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("stream controller error: %v", err)
	}
	queryService, err := application.NewQueryService(rt.streams, rt.activity)
	if err != nil {
		logger.Fatalf("stream query error: %v", err)
	}

	var notifier streamnotify.Notifier
	if streamCfg.WebhookURL != "" {
		var webhooks []streamnotify.Notifier
		for _, url := range strings.Split(streamCfg.WebhookURL, ",") {
			if strings.TrimSpace(url) == "" {
				continue
			}
			webhook, err := streamnotify.NewWebhookNotifier(strings.TrimSpace(url), cfg.NotifyTemplate)
			if err != nil {
				logger.Fatalf("stream webhook error: %v", err)
			}
			webhooks = append(webhooks, webhook)
		}
		notifier = streamnotify.NewMultiNotifier(webhooks...)
	}
	monitor, err := application.NewMonitor(rt.streams, notifier, streamCfg, logger)
	if err != nil {
		logger.Fatalf("stream monitor error: %v", err)
	}

	go dispatcher.Run(ctx, cfg.DispatchInterval, logger)
	go requeueLoop(ctx, rt.requeuer, cfg.RequeueInterval, cfg.OutboxMaxAttempts, logger)
	go monitor.Start(ctx)

	streamHandler, err := streamhttp.NewHandler(controller, queryService, rt.audit, logger)
	if err != nil {
		logger.Fatalf("stream handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	streamHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.Printf("http listening on %s runtime=%s", cfg.HTTPAddr, rt.name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	DevWallets        string
	NotifyTemplate    string
	DispatchInterval  time.Duration
	RequeueInterval   time.Duration
	OutboxMaxAttempts int
	EventLog          bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		DevWallets:        getenvDefault("STREAM_DEV_WALLETS", ""),
		NotifyTemplate:    getenvDefault("STREAM_NOTIFY_TEMPLATE", ""),
		DispatchInterval:  getenvDuration("OUTBOX_DISPATCH_INTERVAL", 5*time.Second),
		RequeueInterval:   getenvDuration("OUTBOX_REQUEUE_INTERVAL", time.Minute),
		OutboxMaxAttempts: getenvIntDefault("OUTBOX_MAX_ATTEMPTS", 5),
		EventLog:          getenvDefault("STREAM_EVENT_LOG", "true") == "true",
	}
	if cfg.JWTSecret == "" {
		if cfg.DatabaseURL != "" {
			log.Fatal("AUTH_JWT_SECRET is required")
		}
		cfg.JWTSecret = devJWTSecret
	}
	return cfg
}

// runtime bundles the storage backends the service runs on.
type runtime struct {
	name      string
	db        *sql.DB
	ledger    application.Ledger
	streams   application.StreamQuery
	activity  application.ActivityRepository
	outbox    outboxStore
	processed eventing.ProcessedStore
	dlq       eventing.DLQStore
	requeuer  outboxRequeuer
	audit     audit.Logger
}

type outboxStore interface {
	eventing.OutboxStore
	eventing.OutboxWriter
}

type outboxRequeuer interface {
	RequeueFailed(ctx context.Context, maxAttempts int) (int64, error)
}

func (rt *runtime) Close() {
	if rt != nil && rt.db != nil {
		_ = rt.db.Close()
	}
}

func buildRuntime(ctx context.Context, cfg config, logger *log.Logger) (*runtime, error) {
	if cfg.DatabaseURL == "" {
		return buildMemoryRuntime(cfg, logger)
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	ledger := streamrepo.NewLedger(db)
	outbox := eventingrepo.NewOutboxStore(db)
	return &runtime{
		name:      "postgres",
		db:        db,
		ledger:    ledger,
		streams:   ledger,
		activity:  streamrepo.NewActivityRepository(db),
		outbox:    outbox,
		processed: eventingrepo.NewProcessedStore(db),
		dlq:       eventingrepo.NewDLQStore(db),
		requeuer:  outbox,
		audit:     audit.NewRepository(db),
	}, nil
}

func buildMemoryRuntime(cfg config, logger *log.Logger) (*runtime, error) {
	ledger := streammem.NewLedger()
	wallets, err := parseDevWallets(cfg.DevWallets)
	if err != nil {
		return nil, err
	}
	for _, wallet := range wallets {
		if err := ledger.Credit(wallet.owner, wallet.amount); err != nil {
			return nil, err
		}
		token, err := auth.SignJWT([]byte(cfg.JWTSecret), string(wallet.owner), 24*time.Hour)
		if err != nil {
			return nil, err
		}
		logger.Printf("dev wallet seeded: owner=%s amount=%d token=%s", wallet.owner, wallet.amount, token)
	}
	outbox := eventingmem.NewOutboxStore()
	return &runtime{
		name:      "memory",
		ledger:    ledger,
		streams:   ledger,
		activity:  streammem.NewActivityRepository(),
		outbox:    outbox,
		processed: eventingmem.NewProcessedStore(),
		dlq:       eventingmem.NewDLQStore(),
		requeuer:  outbox,
		audit:     audit.NewLogWriter(logger),
	}, nil
}

type devWallet struct {
	owner  stream.Authority
	amount uint64
}

// parseDevWallets reads "owner=amount,owner=amount".
func parseDevWallets(value string) ([]devWallet, error) {
	var wallets []devWallet
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		owner, rawAmount, ok := strings.Cut(item, "=")
		if !ok {
			return nil, errors.New("STREAM_DEV_WALLETS: expected owner=amount, got " + item)
		}
		amount, err := strconv.ParseUint(strings.TrimSpace(rawAmount), 10, 64)
		if err != nil {
			return nil, errors.New("STREAM_DEV_WALLETS: bad amount for " + owner)
		}
		authority := stream.Authority(strings.TrimSpace(owner))
		if !authority.Valid() {
			return nil, errors.New("STREAM_DEV_WALLETS: bad owner " + owner)
		}
		wallets = append(wallets, devWallet{owner: authority, amount: amount})
	}
	return wallets, nil
}

func requeueLoop(ctx context.Context, requeuer outboxRequeuer, interval time.Duration, maxAttempts int, logger *log.Logger) {
	if requeuer == nil || interval <= 0 || maxAttempts <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := requeuer.RequeueFailed(ctx, maxAttempts)
			if err != nil {
				logger.Printf("outbox requeue error: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("outbox requeued: count=%d", n)
			}
		}
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
