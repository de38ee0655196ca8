package http

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
)

// Los CAF del SII pesan unos pocos KB.
const maxCAFSize = 64 << 10

// CAFHandler administra los rangos de folios del emisor autenticado.
type CAFHandler struct {
	ledger *domsii.FolioLedger
}

// NewCAFHandler construye el handler.
func NewCAFHandler(ledger *domsii.FolioLedger) *CAFHandler {
	return &CAFHandler{ledger: ledger}
}

// Upload registra un CAF. Acepta el XML como cuerpo o como archivo multipart "caf".
// POST /api/cafs
func (h *CAFHandler) Upload(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	data, err := cafBody(c)
	if err != nil {
		return badRequest(c, "INVALID_BODY", err.Error())
	}
	r, err := domsii.ParseCAF(data)
	if err != nil {
		return writeError(c, err)
	}
	if r.IssuerRUT != issuerRUT {
		return writeError(c, fmt.Errorf("CAF de %s no corresponde al emisor %s: %w", r.IssuerRUT, issuerRUT, domain.ErrForbidden))
	}
	entry, err := h.ledger.Register(c.Context(), *r)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCAFResponse(entry))
}

// List rangos del emisor.
// GET /api/cafs
func (h *CAFHandler) List(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	entries, err := h.ledger.List(c.Context(), issuerRUT)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.CAFResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCAFResponse(e))
	}
	return c.JSON(out)
}

// Activate deja activo el rango indicado (y desactiva el resto del mismo tipo).
// POST /api/cafs/:id/activate
func (h *CAFHandler) Activate(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	entry, err := h.ledger.Activate(c.Context(), issuerRUT, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCAFResponse(entry))
}

// Deactivate POST /api/cafs/:id/deactivate
func (h *CAFHandler) Deactivate(c *fiber.Ctx) error {
	issuerRUT := GetIssuerRUT(c)
	if issuerRUT == "" {
		return unauthorized(c)
	}
	entry, err := h.ledger.Deactivate(c.Context(), issuerRUT, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toCAFResponse(entry))
}

func cafBody(c *fiber.Ctx) ([]byte, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("caf")
		if err != nil {
			return nil, fmt.Errorf("archivo \"caf\" requerido")
		}
		if fh.Size > maxCAFSize {
			return nil, fmt.Errorf("CAF demasiado grande")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("leer archivo: %v", err)
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxCAFSize))
	}
	body := c.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("cuerpo vacío: enviar el XML del CAF")
	}
	if len(body) > maxCAFSize {
		return nil, fmt.Errorf("CAF demasiado grande")
	}
	// c.Body() se reutiliza al terminar el request.
	return append([]byte(nil), body...), nil
}

func toCAFResponse(e *entity.FolioLedgerEntry) dto.CAFResponse {
	out := dto.CAFResponse{
		ID:            e.ID,
		IssuerRUT:     e.Range.IssuerRUT,
		DocumentType:  e.Range.DocumentType,
		FolioStart:    e.Range.FolioStart,
		FolioEnd:      e.Range.FolioEnd,
		LastFolioUsed: e.LastFolioUsed,
		Remaining:     e.Remaining(),
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
	if !e.Range.AuthorizedAt.IsZero() {
		out.AuthorizedAt = e.Range.AuthorizedAt.Format("2006-01-02")
	}
	return out
}
