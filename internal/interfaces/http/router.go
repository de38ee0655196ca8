package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-api/internal/application/dte"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Ledger    *domsii.FolioLedger
	Provider  dte.Provider
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token con issuer_rut)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// CAF: rangos de folios autorizados por el SII
	cafs := protected.Group("/cafs")
	cafHandler := NewCAFHandler(deps.Ledger)
	cafs.Post("/", cafHandler.Upload)
	cafs.Get("/", cafHandler.List)
	cafs.Post("/:id/activate", cafHandler.Activate)
	cafs.Post("/:id/deactivate", cafHandler.Deactivate)

	// DTE: emisión y seguimiento
	dtes := protected.Group("/dte")
	dteHandler := NewDTEHandler(deps.Provider)
	dtes.Post("/", dteHandler.Issue)
	dtes.Get("/status/:trackId", dteHandler.Status)
	dtes.Get("/:type/:folio", dteHandler.Get)
	dtes.Post("/:type/:folio/resubmit", dteHandler.Resubmit)
}
