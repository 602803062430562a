package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/acme/emergency-call-relay/internal/config"
	"github.com/acme/emergency-call-relay/internal/infra/redis"
	"github.com/acme/emergency-call-relay/internal/metrics"
	"github.com/acme/emergency-call-relay/internal/queue"
	callsvc "github.com/acme/emergency-call-relay/internal/service/call"
	"github.com/acme/emergency-call-relay/internal/service/dedup"
	"github.com/acme/emergency-call-relay/internal/telemetry"
	"github.com/acme/emergency-call-relay/internal/telephony"
	telephonyMock "github.com/acme/emergency-call-relay/internal/telephony/mock"
	"github.com/acme/emergency-call-relay/internal/telephony/twilio"
	"github.com/acme/emergency-call-relay/pkg/logger"
)

const redisConnectTimeout = 3 * time.Second

// Container wires together shared infrastructure dependencies. Everything in
// it is built once by Build and read concurrently afterwards.
type Container struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	// Optional collaborators; nil when not configured or unreachable at startup.
	Redis  *redis.Client
	Events *queue.EventPublisher

	// Provider is nil when the credentials were incomplete.
	Provider telephony.Provider
	Calls    *callsvc.Service

	shutdownTelemetry func(context.Context) error
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	return New(ctx, cfg, lg)
}

// New wires the container from an already loaded configuration.
func New(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*Container, error) {
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("bootstrap telemetry: %w", err)
	}

	c := &Container{
		Config:            cfg,
		Logger:            lg,
		Registry:          prometheus.NewRegistry(),
		shutdownTelemetry: shutdown,
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	provider, err := buildProvider(cfg, lg)
	if err != nil {
		return nil, err
	}
	c.Provider = provider

	opts := []callsvc.Option{
		callsvc.WithMetrics(metrics.NewPrometheusSink(c.Registry, lg.Logger)),
	}

	if guard := c.buildGuard(ctx); guard != nil {
		opts = append(opts, callsvc.WithDuplicateGuard(guard))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		c.Events = queue.NewEventPublisher(kafka, cfg.Kafka.EventTopic)
		opts = append(opts, callsvc.WithEventPublisher(c.Events))
		lg.Info("call events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.EventTopic))
	}

	c.Calls = callsvc.NewService(provider, callsvc.Settings{
		FromNumber:   cfg.Provider.FromNumber,
		Announcement: cfg.CallBridge.Announcement,
		Timeout:      cfg.CallBridge.RequestTimeout,
	}, lg, opts...)

	return c, nil
}

// buildProvider returns a nil Provider, not an error, when credentials are
// incomplete: the relay keeps serving and reports the misconfiguration per request.
func buildProvider(cfg *config.Config, lg *logger.Logger) (telephony.Provider, error) {
	creds := cfg.Provider
	lg.Info("provider configuration",
		zap.String("provider", cfg.CallBridge.ProviderName),
		zap.Bool("account_id_set", creds.AccountID != ""),
		zap.Bool("api_key_set", creds.APIKey != ""),
		zap.Bool("api_secret_set", creds.APISecret != ""),
		zap.String("from_number", creds.FromNumber),
	)

	if missing := creds.Missing(); len(missing) > 0 {
		lg.Warn("provider credentials incomplete, call requests will be rejected",
			zap.String("missing", strings.Join(missing, ",")))
		return nil, nil
	}

	switch strings.ToLower(cfg.CallBridge.ProviderName) {
	case "", "twilio":
		p, err := twilio.NewProvider(creds, cfg.CallBridge)
		if err != nil {
			return nil, fmt.Errorf("bootstrap provider: %w", err)
		}
		return p, nil
	case "mock":
		lg.Warn("using simulated telephony provider, no real calls will be placed")
		return telephonyMock.NewProvider(200 * time.Millisecond), nil
	default:
		return nil, fmt.Errorf("bootstrap provider: unknown provider %q", cfg.CallBridge.ProviderName)
	}
}

func (c *Container) buildGuard(ctx context.Context) *dedup.Guard {
	if !c.Config.Dedup.Enabled {
		return nil
	}
	if c.Config.Redis.Address == "" {
		c.Logger.Warn("dedup enabled without redis address, duplicate protection disabled")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	client, err := redis.Dial(connectCtx, c.Config.Redis)
	if err != nil {
		c.Logger.Warn("redis unavailable, duplicate protection disabled", zap.Error(err))
		return nil
	}
	c.Redis = client
	return dedup.NewGuard(client.Store(), c.Config.Dedup.TTL, c.Config.Dedup.KeyPrefix)
}

// HealthChecks lists the optional dependencies to probe from /healthz.
func (c *Container) HealthChecks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	return checks
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.shutdownTelemetry != nil {
		if err := c.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
