package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-api/internal/application/dte"
	"github.com/jhoicas/dte-api/internal/application/dto"
)

// DTEHandler emisión y consulta de documentos tributarios electrónicos.
type DTEHandler struct {
	provider dte.Provider
}

// NewDTEHandler construye el handler.
func NewDTEHandler(provider dte.Provider) *DTEHandler {
	return &DTEHandler{provider: provider}
}

// Issue emite un DTE para el emisor del token.
// POST /api/dte
func (h *DTEHandler) Issue(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	var in dto.InvoiceSummary
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "INVALID_BODY", "cuerpo inválido")
	}
	// El emisor siempre es el del token.
	in.Issuer.RUT = issuerRUT

	res, err := h.provider.Issue(c.Context(), in)
	if err != nil {
		if res == nil {
			return writeError(c, err)
		}
		return c.Status(statusFor(err)).JSON(res)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Status consulta una vez el estado del envío en el SII.
// GET /api/dte/status/:trackId
func (h *DTEHandler) Status(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	trackID := c.Params("trackId")
	if trackID == "" {
		return badRequest(c, "VALIDATION", "trackId requerido")
	}
	res, err := h.provider.CheckStatus(c.Context(), issuerRUT, trackID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// Get GET /api/dte/:type/:folio
func (h *DTEHandler) Get(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	dteType, folio, ok := typeAndFolio(c)
	if !ok {
		return badRequest(c, "VALIDATION", "tipo y folio deben ser numéricos")
	}
	doc, err := h.provider.Document(c.Context(), issuerRUT, dteType, folio)
	if err != nil {
		return writeError(c, err)
	}
	if c.Query("format") == "xml" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
		return c.SendString(doc.XMLContent)
	}
	return c.JSON(doc)
}

// Resubmit reenvía un documento armado que no llegó al SII.
// POST /api/dte/:type/:folio/resubmit
func (h *DTEHandler) Resubmit(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	dteType, folio, ok := typeAndFolio(c)
	if !ok {
		return badRequest(c, "VALIDATION", "tipo y folio deben ser numéricos")
	}
	res, err := h.provider.Resubmit(c.Context(), issuerRUT, dteType, folio)
	if err != nil {
		if res == nil {
			return writeError(c, err)
		}
		return c.Status(statusFor(err)).JSON(res)
	}
	return c.JSON(res)
}

func typeAndFolio(c *fiber.Ctx) (int, int64, bool) {
	dteType, err := strconv.Atoi(c.Params("type"))
	if err != nil {
		return 0, 0, false
	}
	folio, err := strconv.ParseInt(c.Params("folio"), 10, 64)
	if err != nil || folio <= 0 {
		return 0, 0, false
	}
	return dteType, folio, true
}
