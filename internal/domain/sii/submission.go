package sii

import (
	"fmt"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// Classify traduce un ESTADO del SII al estado del ciclo de vida del envío.
// Un token desconocido es ErrUnparseableResponse: el protocolo cambió y hay que revisarlo.
func Classify(statusToken string) (string, error) {
	switch {
	case sii.AcceptedStatuses[statusToken]:
		return entity.IssuanceAccepted, nil
	case sii.RejectedStatuses[statusToken]:
		return entity.IssuanceRejected, nil
	case sii.ProcessingStatuses[statusToken]:
		return entity.IssuanceProcessing, nil
	}
	return "", fmt.Errorf("%w: ESTADO %q desconocido", domain.ErrUnparseableResponse, statusToken)
}

// IsTerminal indica si el estado ya no cambia.
func IsTerminal(state string) bool {
	switch state {
	case entity.IssuanceAccepted, entity.IssuanceRejected, entity.IssuanceVoided:
		return true
	}
	return false
}

// Advance calcula el siguiente estado a partir del estado actual y la respuesta del SII.
//
//	BUILT -> SUBMITTED -> PROCESSING* -> ACCEPTED | REJECTED
//
// Solo un envío SUBMITTED o PROCESSING acepta respuestas. Volver a consultar un envío
// terminal que responde el mismo estado final no es un error.
func Advance(current string, outcome entity.SubmissionOutcome) (string, error) {
	next, err := Classify(outcome.Status)
	if err != nil {
		return "", err
	}
	switch current {
	case entity.IssuanceSubmitted, entity.IssuanceProcessing:
		return next, nil
	case entity.IssuanceAccepted, entity.IssuanceRejected:
		if next == current {
			return current, nil
		}
	}
	return "", fmt.Errorf("%w: %s -> %s (ESTADO %s)", domain.ErrInvalidTransition, current, next, outcome.Status)
}
