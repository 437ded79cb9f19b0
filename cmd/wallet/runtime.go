package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"paywallet/internal/audit"
	auditrepo "paywallet/internal/audit/repository"
	"paywallet/internal/authz"
	"paywallet/internal/config"
	"paywallet/internal/db"
	"paywallet/internal/db/migrate"
	"paywallet/internal/dispatch"
	"paywallet/internal/health"
	"paywallet/internal/identity"
	"paywallet/internal/intent/policy"
	"paywallet/internal/ledger"
	"paywallet/internal/logging"
	"paywallet/internal/otp"
	"paywallet/internal/otp/delivery"
	otprepo "paywallet/internal/otp/repository"
	"paywallet/internal/reconcile"
	reconcilerepo "paywallet/internal/reconcile/repository"
	"paywallet/internal/session"
	sessionrepo "paywallet/internal/session/repository"
	telemetryotel "paywallet/internal/telemetry/otel"
	"paywallet/internal/wallet"
)

// runtime is everything one CLI invocation needs.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	conn   *db.DB
	wallet *wallet.Wallet
	audit  *audit.Logger
	health *health.Checker
	// dev is set in dev OTP mode so prompts can show the code.
	dev      *delivery.DevSender
	shutdown func(context.Context) error
}

func newRuntime(ctx context.Context, cfg *config.Config, out io.Writer) (*runtime, error) {
	logger := logging.New(cfg.LogLevel, cfg.Env)

	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "paywallet",
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	instruments, err := telemetryotel.NewInstruments(providers.TracerProvider, providers.MeterProvider)
	if err != nil {
		_ = providers.Shutdown(ctx)
		_ = conn.Close()
		return nil, fmt.Errorf("instruments: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, conn: conn}
	rt.shutdown = func(ctx context.Context) error {
		err := providers.Shutdown(ctx)
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
		_ = logger.Sync()
		return err
	}

	var sender otp.Sender
	if cfg.OTPReturnToClient && !cfg.IsProduction() {
		rt.dev = delivery.NewDevSender(cfg.ChallengeTTL())
		sender = rt.dev
		logger.Warn("dev OTP mode: codes are printed instead of delivered")
	} else {
		sender = delivery.NewHTTPSender(cfg.OTPDeliveryURL, cfg.Timeout(), delivery.WithValidity(cfg.ChallengeTTL()))
	}
	otpManager := otp.NewManager(otprepo.NewMemoryStore(), sender,
		otp.WithTTL(cfg.ChallengeTTL()),
		otp.WithResendCooldown(cfg.ResendCooldown()),
		otp.WithMaxAttempts(cfg.OTPMaxAttempts),
		otp.WithLogger(logger))

	ledgerClient := ledger.NewClient(cfg.WalletAPIURL, cfg.Timeout(), ledger.WithLogger(logger))
	accounts := identity.NewClient(cfg.WalletAPIURL, cfg.Timeout())

	reconciler := reconcile.New(ledgerClient,
		reconcile.WithStore(reconcilerepo.NewSQLStore(conn)),
		reconcile.WithMetrics(instruments),
		reconcile.WithLogger(logger))

	dispatcher := dispatch.New(
		dispatch.WithWindow(cfg.DisplayWindow()),
		dispatch.WithEmitter(telemetryotel.NewEventEmitter(providers.LoggerProvider)),
		dispatch.WithLogger(logger))
	dispatcher.Subscribe(func(r dispatch.Result) {
		fmt.Fprintf(out, "%s %s\n", resultMark(r.Kind), r.Message)
	})

	rt.audit = audit.NewLogger(auditrepo.NewSQLRepository(conn), logger)

	machine := authz.NewMachine(otpManager, ledgerClient,
		authz.WithIdentity(accounts),
		authz.WithReconciler(reconciler),
		authz.WithDispatcher(dispatcher),
		authz.WithAudit(rt.audit),
		authz.WithMetrics(instruments),
		authz.WithTracer(instruments.Tracer()),
		authz.WithRetention(cfg.ChallengeTTL()),
		authz.WithLogger(logger))

	deps := wallet.Deps{
		Accounts:   accounts,
		Sessions:   session.NewStore(sessionrepo.NewSQLRepository(conn), session.WithSecret(cfg.SessionSecret), session.WithLogger(logger)),
		Machine:    machine,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	evaluator, err := policy.NewEvaluator(ctx, cfg.MaxAmountDecimal(), cfg.LimitsPolicyFile, logger)
	if err != nil {
		logger.Warn("limits policy unavailable, using built-in limits", zap.Error(err))
		rt.health = health.NewChecker(conn, nil)
	} else {
		deps.Limits = evaluator
		rt.health = health.NewChecker(conn, evaluator)
	}
	rt.wallet = wallet.New(deps)

	if _, err := rt.wallet.Rehydrate(ctx); err != nil {
		logger.Warn("could not restore session", zap.Error(err))
	}
	return rt, nil
}

func resultMark(k dispatch.Kind) string {
	switch k {
	case dispatch.KindSuccess:
		return "[ok]"
	case dispatch.KindError:
		return "[error]"
	case dispatch.KindWarning:
		return "[warning]"
	}
	return "[" + strings.ToLower(string(k)) + "]"
}
