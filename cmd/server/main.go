package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pdv-backend/internal/admin"
	"pdv-backend/internal/audit"
	"pdv-backend/internal/auth"
	"pdv-backend/internal/cashflow"
	"pdv-backend/internal/cashsession"
	"pdv-backend/internal/config"
	"pdv-backend/internal/dashboard"
	"pdv-backend/internal/database"
	"pdv-backend/internal/events"
	"pdv-backend/internal/lock"
	"pdv-backend/internal/logger"
	"pdv-backend/internal/models"
	"pdv-backend/internal/report"
	"pdv-backend/internal/serviceorder"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("[FATAL] logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		zl.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zl.Fatal("database migration failed", zap.Error(err))
	}
	zl.Info("database ready")

	// Redis é opcional: sem ele o lock da linha no Postgres basta.
	var locker lock.Locker = lock.NopLocker{}
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			zl.Fatal("redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		zl.Info("redis close lock enabled", zap.String("addr", cfg.RedisAddr))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := events.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			zl.Fatal("rabbitmq connection failed", zap.Error(err))
		}
		publisher = p
		zl.Info("rabbitmq publisher enabled", zap.String("queue", events.SessionClosedQueue))
	}
	defer publisher.Close()

	// Relatórios
	store, err := report.NewFileStore(cfg.ReportDir)
	if err != nil {
		zl.Fatal("report dir unavailable", zap.String("dir", cfg.ReportDir), zap.Error(err))
	}
	renderer, err := report.NewRenderer(cfg.ReportFormat)
	if err != nil {
		zl.Fatal("report renderer", zap.Error(err))
	}
	signer := report.NewURLSigner(cfg.ReportSigningSecret, cfg.PublicBaseURL)
	emitter := report.NewEmitter(store, signer, renderer)

	// Auditoria com fila de retentativa em background
	recorder := audit.NewRecorder(audit.NewGormStore(db), zl.Named("audit"), cfg.AuditRetryInterval, cfg.AuditRetryMaxAttempts)
	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go recorder.Run(bgCtx)

	orders := serviceorder.NewRepository(db)
	ledger := cashflow.NewLedger(db)
	sessions := cashsession.NewService(cashsession.Deps{
		Store:   cashsession.NewRepository(db),
		Orders:  orders,
		Reports: emitter,
		Audit:   recorder,
		Locker:  locker,
		Events:  publisher,
		Log:     zl.Named("cashsession"),
	})

	app := fiber.New(fiber.Config{
		// Erros saem como texto puro com o status correspondente.
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).SendString(e.Message)
			}
			zl.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.Middleware(zl.Named("http")))

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,OPTIONS",
	}))

	api := app.Group("/api")

	// Públicas
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))
	api.Get("/reports/*", report.DownloadHandler(store, signer)) // o token do link é a autorização

	// Protegidas
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler())

	// Caixa
	protected.Post("/cash-sessions/close", cashsession.CloseSessionHandler(sessions))
	protected.Post("/cash-sessions", cashsession.OpenSessionHandler(sessions))
	protected.Get("/cash-sessions", cashsession.ListSessionsHandler(sessions))
	protected.Get("/cash-sessions/:id", cashsession.GetSessionHandler(sessions))
	protected.Put("/cash-sessions/:id/count", cashsession.RecordCountHandler(sessions))
	protected.Post("/cash-sessions/:id/report", cashsession.RegenerateReportHandler(sessions))

	// Movimentos
	protected.Post("/cash-sessions/:id/movements", cashflow.CreateCashMovementHandler(ledger, recorder, zl))
	protected.Get("/cash-sessions/:id/movements", cashflow.ListCashMovementsHandler(ledger))
	protected.Get("/cash-sessions/:id/movements/summary", cashflow.MovementSummaryHandler(ledger))

	// Ordens de serviço
	protected.Post("/service-orders", serviceorder.CreateServiceOrderHandler(orders, recorder, zl))
	protected.Get("/service-orders", serviceorder.ListServiceOrdersHandler(orders))
	protected.Patch("/service-orders/:id/status", serviceorder.UpdateServiceOrderStatusHandler(orders, recorder, zl))

	// Dashboard
	protected.Get("/dashboard/cash-chart", dashboard.CashChartHandler(db))

	// Super admin
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))
	adminRoutes.Get("/branches", admin.ListBranchesHandler(db))
	adminRoutes.Get("/branches/:id", admin.GetBranchHandler(db))

	// Auditoria (somente admins)
	protected.Get("/audit-logs",
		auth.RequireRole(models.RoleSuperAdmin, models.RoleBranchAdmin),
		audit.ListAuditLogsHandler(recorder),
	)

	go func() {
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			zl.Fatal("http server stopped", zap.Error(err))
		}
	}()
	zl.Info("http server listening", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}

	// última tentativa de gravar auditoria pendente
	stopBackground()
	recorder.Flush(ctx)
	if n := recorder.Pending(); n > 0 {
		zl.Warn("audit entries lost on shutdown", zap.Int("pending", n))
	}
}
