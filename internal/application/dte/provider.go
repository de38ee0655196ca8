// Package dte expone la emisión de DTE y la consulta de estado detrás de una interfaz única,
// con una variante real (firma y envío al SII) y una simulada para pruebas de integración.
package dte

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// Provider capacidad de emitir documentos y consultar su estado ante la autoridad.
type Provider interface {
	// Issue asigna folio, timbra, arma y envía el documento.
	// Una falla devuelve IssueResult{Success:false} junto con un *domain.IssueError.
	Issue(ctx context.Context, in dto.InvoiceSummary) (*dto.IssueResult, error)

	// CheckStatus consulta una vez el estado del envío trackID del emisor.
	CheckStatus(ctx context.Context, issuerRUT, trackID string) (*dto.StatusResult, error)

	// Resubmit reenvía los mismos bytes de un documento que quedó sin entregar (estado BUILT).
	Resubmit(ctx context.Context, issuerRUT string, dteType int, folio int64) (*dto.IssueResult, error)

	// Document devuelve el documento emitido con ese folio.
	Document(ctx context.Context, issuerRUT string, dteType int, folio int64) (*dto.DocumentResponse, error)
}

// ErrorCode código estable para la categoría del error (se expone en la API).
func ErrorCode(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrMalformedAuthorization:
		return "MALFORMED_AUTHORIZATION"
	case domain.ErrMissingSigningKey:
		return "MISSING_SIGNING_KEY"
	case domain.ErrOverlappingRange:
		return "OVERLAPPING_RANGE"
	case domain.ErrRangeExhausted:
		return "RANGE_EXHAUSTED"
	case domain.ErrNoActiveRange:
		return "NO_ACTIVE_RANGE"
	case domain.ErrSigningKeyInvalid:
		return "SIGNING_KEY_INVALID"
	case domain.ErrSigningFailure:
		return "SIGNING_FAILURE"
	case domain.ErrSerialization:
		return "SERIALIZATION_ERROR"
	case domain.ErrEmptyEnvelope:
		return "EMPTY_ENVELOPE"
	case domain.ErrTransport:
		return "TRANSPORT_ERROR"
	case domain.ErrUnparseableResponse:
		return "UNPARSEABLE_RESPONSE"
	case domain.ErrUploadRejected:
		return "UPLOAD_REJECTED"
	case domain.ErrInvalidTransition:
		return "INVALID_TRANSITION"
	case domain.ErrNotFound:
		return "NOT_FOUND"
	case domain.ErrInvalidInput:
		return "INVALID_INPUT"
	case domain.ErrDuplicate:
		return "DUPLICATE"
	case domain.ErrUnauthorized:
		return "UNAUTHORIZED"
	case domain.ErrForbidden:
		return "FORBIDDEN"
	case domain.ErrConflict:
		return "CONFLICT"
	}
	return "INTERNAL_ERROR"
}

// failed arma la respuesta "documento no emitido" para err.
func failed(err error) *dto.IssueResult {
	res := &dto.IssueResult{Success: false, Error: err.Error(), Code: ErrorCode(err)}
	var ie *domain.IssueError
	if errors.As(err, &ie) {
		res.Folio = ie.Folio
	}
	return res
}

// issueError envuelve err con el contexto de la emisión; la categoría se deduce de err.
func issueError(in dto.InvoiceSummary, folio int64, step string, err error) *domain.IssueError {
	return &domain.IssueError{
		Kind:         domain.KindOf(err),
		Issuer:       in.Issuer.RUT,
		DocumentType: in.DocumentType,
		Folio:        folio,
		Step:         step,
		Err:          err,
	}
}

// validateSummary exige todo lo que el timbre y el armado del documento rechazarían,
// para que un dato faltante no consuma folio.
// Los montos ya vienen calculados y no se revisan aquí.
func validateSummary(in dto.InvoiceSummary) error {
	var problems []string
	if strings.TrimSpace(in.Issuer.RUT) == "" {
		problems = append(problems, "issuer.rut requerido")
	}
	if strings.TrimSpace(in.Issuer.Name) == "" {
		problems = append(problems, "issuer.name requerido")
	}
	if _, ok := sii.DocumentTypeNames[in.DocumentType]; !ok {
		problems = append(problems, fmt.Sprintf("document_type %d no soportado", in.DocumentType))
	}
	if err := sii.ValidateRUT(in.Receiver.RUT); err != nil {
		problems = append(problems, "receiver.rut: "+err.Error())
	}
	if strings.TrimSpace(in.Receiver.Name) == "" {
		problems = append(problems, "receiver.name requerido")
	}
	if len(in.Items) == 0 {
		problems = append(problems, "al menos un ítem")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].name requerido", i))
		}
	}
	if in.Total.IsNegative() {
		problems = append(problems, "total negativo")
	}
	if in.IssueDate != "" {
		if _, err := time.Parse("2006-01-02", in.IssueDate); err != nil {
			problems = append(problems, "issue_date debe ser AAAA-MM-DD")
		}
	}
	if in.DueDate != "" {
		if _, err := time.Parse("2006-01-02", in.DueDate); err != nil {
			problems = append(problems, "due_date debe ser AAAA-MM-DD")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// issueDate fecha de emisión; vacía = fecha de now.
func issueDate(in dto.InvoiceSummary, now time.Time) time.Time {
	if in.IssueDate != "" {
		if t, err := time.Parse("2006-01-02", in.IssueDate); err == nil {
			return t
		}
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
