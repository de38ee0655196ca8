package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// Errores del motor de emisión DTE. Cada etapa del flujo tiene su propia familia
// para que el llamador distinga fallas de ensamblado, de libro de folios y de transporte.
var (
	// Autorización de folios (CAF)
	ErrMalformedAuthorization = errors.New("CAF mal formado")
	ErrMissingSigningKey      = errors.New("CAF sin llave privada RSASK")
	ErrOverlappingRange       = errors.New("rango de folios se traslapa con uno registrado")

	// Libro de folios
	ErrRangeExhausted = errors.New("rango de folios agotado")
	ErrNoActiveRange  = errors.New("no hay rango de folios activo")

	// Firma del timbre (TED) y ensamblado
	ErrSigningKeyInvalid = errors.New("llave de firma del CAF inválida")
	ErrSigningFailure    = errors.New("falla al firmar")
	ErrSerialization     = errors.New("falla al serializar XML")
	ErrEmptyEnvelope     = errors.New("sobre EnvioDTE sin documentos")

	// Comunicación con el SII
	ErrTransport           = errors.New("falla de transporte con el SII")
	ErrUnparseableResponse = errors.New("respuesta del SII no interpretable")
	ErrUploadRejected      = errors.New("envío rechazado por el SII")

	// Ciclo de vida del envío
	ErrInvalidTransition = errors.New("transición de estado inválida")
)

// IssueError describe una falla de emisión con el contexto de negocio que la produjo.
// Folio es 0 cuando la falla ocurrió antes de asignar folio.
type IssueError struct {
	Kind         error // uno de los Err* de este paquete
	Issuer       string
	DocumentType int
	Folio        int64
	Step         string
	Err          error
}

func (e *IssueError) Error() string {
	msg := fmt.Sprintf("sii: emisión %s tipo %d", e.Issuer, e.DocumentType)
	if e.Folio > 0 {
		msg += fmt.Sprintf(" folio %d", e.Folio)
	}
	if e.Step != "" {
		msg += " (" + e.Step + ")"
	}
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Kind != nil:
		return msg + ": " + e.Kind.Error()
	}
	return msg
}

// Unwrap expone tanto la categoría como la causa a errors.Is / errors.As.
func (e *IssueError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf devuelve la categoría de dominio de err, o nil si no pertenece a ninguna conocida.
func KindOf(err error) error {
	var ie *IssueError
	if errors.As(err, &ie) && ie.Kind != nil {
		return ie.Kind
	}
	for _, k := range []error{
		ErrMalformedAuthorization, ErrMissingSigningKey, ErrOverlappingRange,
		ErrRangeExhausted, ErrNoActiveRange,
		ErrSigningKeyInvalid, ErrSigningFailure, ErrSerialization, ErrEmptyEnvelope,
		ErrTransport, ErrUnparseableResponse, ErrUploadRejected, ErrInvalidTransition,
		ErrNotFound, ErrInvalidInput, ErrDuplicate, ErrUnauthorized, ErrForbidden, ErrConflict,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRetryable indica si la operación puede reintentarse sin cambios (solo fallas de transporte).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
