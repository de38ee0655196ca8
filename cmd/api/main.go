package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/dte-api/internal/application/dte"
	"github.com/jhoicas/dte-api/internal/domain/repository"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/memory"
	"github.com/jhoicas/dte-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/dte-api/internal/interfaces/http"
	"github.com/jhoicas/dte-api/pkg/config"
	"github.com/jhoicas/dte-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sii_provider", cfg.SII.Provider).
		Str("sii_environment", cfg.SII.Environment).
		Str("store", cfg.SII.Store).
		Msg("iniciando aplicación")

	ctx := context.Background()

	// Libro de folios y registro de emisiones: en memoria (un solo proceso) o PostgreSQL.
	var (
		folioRepo    repository.FolioRepository
		issuanceRepo repository.IssuanceRepository
	)
	if cfg.SII.Store == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migraciones")
		}
		folioRepo = postgres.NewFolioRepository(pool)
		issuanceRepo = postgres.NewIssuanceRepository(pool)
	} else {
		log.Warn().Msg("SII_STORE=memory: los folios asignados se pierden al reiniciar")
		folioRepo = memory.NewFolioStore()
		issuanceRepo = memory.NewIssuanceStore()
	}

	ledger := domsii.NewFolioLedger(folioRepo, log.Component("folio_ledger"))
	provider, err := dte.NewProvider(cfg.SII, dte.Deps{Ledger: ledger, Issuances: issuanceRepo}, log.Component("dte"))
	if err != nil {
		log.Fatal().Err(err).Msg("proveedor DTE")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60, // el envío al SII puede demorar
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "DTE API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "sii_provider": cfg.SII.Provider})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Ledger:    ledger,
		Provider:  provider,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
