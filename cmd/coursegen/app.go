package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/c360studio/coursegen/aggregator"
	"github.com/c360studio/coursegen/config"
	"github.com/c360studio/coursegen/content"
	"github.com/c360studio/coursegen/gate"
	"github.com/c360studio/coursegen/llm"
	"github.com/c360studio/coursegen/metrics"
	"github.com/c360studio/coursegen/orchestrator"
	"github.com/c360studio/coursegen/storage"
)

// App wires configuration into a running generation pipeline.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	recorder   *metrics.Recorder
	pipeline   *orchestrator.Pipeline
	httpClient *http.Client

	metricsAddr   string
	metricsServer *http.Server
	metricsLn     net.Listener

	closers []func()
}

// AppOption configures an App.
type AppOption func(*App)

// WithAppLogger sets the logger used by every component.
func WithAppLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithMetricsAddr serves /metrics on addr for the lifetime of the App.
func WithMetricsAddr(addr string) AppOption {
	return func(a *App) {
		a.metricsAddr = addr
	}
}

// WithModelHTTPClient sets the HTTP client used to reach the model host.
func WithModelHTTPClient(c *http.Client) AppOption {
	return func(a *App) {
		a.httpClient = c
	}
}

// NewApp builds the admission gate, invoker, rotator, and pipeline from cfg.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppOption) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if llm.GetProvider(cfg.Host.Provider) == nil {
		return nil, fmt.Errorf("provider %q is not registered", cfg.Host.Provider)
	}

	a.registry.MustRegister(collectors.NewGoCollector())
	a.recorder = metrics.New(a.registry)

	admitter, err := a.newAdmitter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	clientOpts := []llm.ClientOption{llm.WithLogger(a.logger)}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, llm.WithHTTPClient(a.httpClient))
	}
	client := llm.NewClient(cfg.LLMHost(), clientOpts...)

	rotator := llm.NewRotator(cfg.Pool(), client,
		llm.WithRetryConfig(cfg.LLMRetry()),
		llm.WithRotatorLogger(a.logger),
		llm.WithAttemptObserver(a.recorder))

	a.pipeline = orchestrator.New(admitter, rotator,
		orchestrator.WithLogger(a.logger),
		orchestrator.WithFallbackObserver(a.recorder))

	if a.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) newAdmitter(ctx context.Context) (gate.Admitter, error) {
	if a.cfg.Gate.Backend != config.GateRedis {
		return gate.New(gate.WithLogger(a.logger)), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Gate.RedisAddr})
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", a.cfg.Gate.RedisAddr, err)
	}

	a.logger.Info("Using shared admission gate", "redis", a.cfg.Gate.RedisAddr)
	return gate.NewRedisGate(rdb,
		gate.WithLeaseTTL(a.cfg.Gate.TTL),
		gate.WithRedisLogger(a.logger)), nil
}

func (a *App) serveMetrics() error {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", a.metricsAddr, err)
	}
	a.metricsLn = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()

	a.logger.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

// MetricsAddr returns the bound metrics address, or "" when not serving.
func (a *App) MetricsAddr() string {
	if a.metricsLn == nil {
		return ""
	}
	return a.metricsLn.Addr().String()
}

// Lesson generates one lesson document.
func (a *App) Lesson(ctx context.Context, req content.LessonRequest) (*content.LessonDocument, error) {
	return a.pipeline.GenerateLesson(ctx, req)
}

// Outline generates a course outline.
func (a *App) Outline(ctx context.Context, req content.CourseRequest) (*content.OutlineDocument, error) {
	return a.pipeline.GenerateCourseStructure(ctx, req)
}

// Build generates a full course and hands it to sink.
func (a *App) Build(ctx context.Context, req content.CourseRequest, sink aggregator.Sink) (*content.Course, error) {
	return a.pipeline.BuildCourse(ctx, req, sink)
}

// Sink picks where built courses go: NATS when configured (plus the KV
// store when nats.store is set), else a JSON-lines file at outPath, else
// stdout. The returned func releases the sink.
func (a *App) Sink(ctx context.Context, outPath string, stdout io.Writer) (aggregator.Sink, func(), error) {
	if a.cfg.NATS.URL != "" {
		nc, js, err := aggregator.Dial(a.cfg.NATS.URL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = nc.Drain() }

		stream, err := aggregator.NewStreamSink(ctx, js, a.natsConfig(), a.logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		if !a.cfg.NATS.Store {
			return stream, closeFn, nil
		}

		store, err := storage.Open(ctx, js, storage.WithLogger(a.logger))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return aggregator.MultiSink{stream, store}, closeFn, nil
	}

	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", outPath, err)
		}
		return aggregator.NewWriterSink(f), func() {
			if err := f.Close(); err != nil {
				a.logger.Warn("Failed to close output", "path", outPath, "error", err)
			}
		}, nil
	}

	return aggregator.NewWriterSink(stdout), func() {}, nil
}

func (a *App) natsConfig() aggregator.NATSConfig {
	return aggregator.NATSConfig{
		URL:           a.cfg.NATS.URL,
		SubjectPrefix: a.cfg.NATS.SubjectPrefix,
		Stream:        a.cfg.NATS.Stream,
	}
}

// OpenStore connects to the course store. It requires nats.url.
func (a *App) OpenStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil, errors.New("nats.url is not configured")
	}
	nc, js, err := aggregator.Dial(a.cfg.NATS.URL)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(ctx, js, storage.WithLogger(a.logger))
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return store, func() { _ = nc.Drain() }, nil
}

// Show loads a stored course ("course:ID") or lesson ("lesson:ID").
func Show(ctx context.Context, store *storage.Store, ref string) (any, error) {
	id, err := storage.ParseEntityID(ref)
	if err != nil {
		return nil, err
	}
	switch id.Type {
	case storage.EntityTypeCourse:
		return store.GetCourse(ctx, id.ID)
	default:
		return store.GetLesson(ctx, id.ID)
	}
}

// Close stops the metrics server and releases connections.
func (a *App) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown failed", "error", err)
		}
		cancel()
		a.metricsServer = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
