// Server hosts portal.identity.v1.CredentialService over gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity-portal/internal/account/domain"
	"identity-portal/internal/audit"
	auditrepo "identity-portal/internal/audit/repository"
	"identity-portal/internal/config"
	"identity-portal/internal/db"
	"identity-portal/internal/identity/merge"
	"identity-portal/internal/identity/service"
	"identity-portal/internal/logging"
	"identity-portal/internal/notify"
	"identity-portal/internal/ratelimit"
	"identity-portal/internal/security"
	"identity-portal/internal/server"
	"identity-portal/internal/server/interceptors"
	"identity-portal/internal/session"
	sessiondomain "identity-portal/internal/session/domain"
	"identity-portal/internal/store"
	"identity-portal/internal/telemetry"
	telemetryotel "identity-portal/internal/telemetry/otel"
)

const serviceName = "identity-portal"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logging.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		// Let in-flight async emits finish before the exporters close.
		time.Sleep(telemetry.ShutdownDrainDuration)
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			log.Warn(sctx, "otel shutdown", "error", err)
		}
	}()
	events, err := telemetryotel.NewEventEmitter(providers.LoggerProvider, providers.MeterProvider)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	st, audits, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hasher, err := security.NewHasher(security.HashParams{
		Time:        cfg.Argon2Time,
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Parallelism: cfg.Argon2Parallelism,
	})
	if err != nil {
		return err
	}
	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := openNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	limiter, closeLimiter, err := openLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLimiter()

	providersEnabled := make([]domain.Method, 0, len(cfg.Providers()))
	for _, p := range cfg.Providers() {
		providersEnabled = append(providersEnabled, domain.Method(p))
	}
	composer := merge.NewComposer(st, merge.Config{EnabledProviders: providersEnabled})

	svc, err := service.NewCredentialService(st, hasher, composer, sessions, notify.NewRenderer(cfg.AppBaseURL), notifier,
		service.WithLimiter(limiter),
		service.WithAudit(audit.NewLogger(audits, interceptors.ClientIP, log)),
		service.WithEvents(events),
		service.WithLogger(log.With("component", "credentials")),
	)
	if err != nil {
		return err
	}

	return server.Run(ctx, cfg.GRPCAddr, server.Deps{
		Flows:         svc,
		Sessions:      sessions,
		Pinger:        st,
		FederationKey: cfg.FederationKey,
		Log:           log,
	})
}

func openStore(cfg *config.Config) (store.Store, auditrepo.Repository, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		return store.NewMemory(), auditrepo.NewMemoryRepository(), func() {}, nil
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db: %w", err)
	}
	return store.NewPostgres(conn), auditrepo.NewPostgresRepository(conn), func() { _ = conn.Close() }, nil
}

func openSessions(cfg *config.Config) (*session.Manager, error) {
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set")
	}
	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("jwt private key: %w", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwt public key: %w", err)
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, sessiondomain.MaxAge, sessiondomain.UpdateAge)
	return session.NewManager(tokens), nil
}

func openNotifier(cfg *config.Config, log logging.Logger) (notify.Notifier, func(), error) {
	switch cfg.Notifier {
	case config.NotifierKafka:
		n, err := notify.NewKafkaNotifier(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return n, func() { _ = n.Close() }, nil
	case config.NotifierRelay:
		return notify.NewRelayClient(cfg.RelayURL, cfg.RelayAPIKey, cfg.MailFrom), func() {}, nil
	}
	log.Warn(context.Background(), "NOTIFIER=outbox: messages are kept in memory and logged, not delivered")
	outbox := notify.NewOutbox()
	return notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		log.Info(ctx, "outbox message", "kind", string(msg.Kind), "recipient", msg.Recipient, "link", msg.Link, "code", msg.Code)
		return outbox.Send(ctx, msg)
	}), func() {}, nil
}

func openLimiter(ctx context.Context, cfg *config.Config, log logging.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn(ctx, "REDIS_URL not set: password and two-factor attempts are not limited")
		return ratelimit.Noop{}, func() {}, nil
	}
	client, err := ratelimit.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return ratelimit.NewRedis(client, cfg.TwoFactorMaxAttempts, cfg.Cooldown()), func() { _ = client.Close() }, nil
}
