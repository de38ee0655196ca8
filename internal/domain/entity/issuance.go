package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados del ciclo de vida de un DTE emitido.
const (
	IssuanceBuilt      = "BUILT"      // Documento y sobre firmados, aún no enviados
	IssuanceSubmitting = "SUBMITTING" // Envío en curso; nadie más puede transmitir el mismo sobre
	IssuanceSubmitted  = "SUBMITTED"  // Recibido por el SII (hay TrackID)
	IssuanceProcessing = "PROCESSING" // SII validando
	IssuanceAccepted   = "ACCEPTED"
	IssuanceRejected   = "REJECTED"
	IssuanceVoided     = "VOIDED" // Folio consumido sin documento válido
)

// IssuanceRecord registra cada folio asignado y el resultado de su emisión.
// Un folio asignado siempre tiene registro, incluso si el ensamblado falló (VOIDED).
type IssuanceRecord struct {
	ID                string
	IssuerRUT         string
	DocumentType      int
	Folio             int64
	Total             decimal.Decimal
	Status            string
	TrackID           string
	DocumentXML       string
	EnvelopeXML       string
	VoidReason        string
	LastStatusCode    string
	LastStatusMessage string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SubmissionOutcome respuesta de la consulta de estado de un envío.
type SubmissionOutcome struct {
	TrackID string
	Code    string // CODIGO (0 = consulta exitosa)
	Status  string // ESTADO (EPR, RCT, ...)
	Message string // GLOSA
}
