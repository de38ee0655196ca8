package sii_test

import (
	"testing"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := map[string]string{
		"EPR": entity.IssuanceAccepted,
		"RPR": entity.IssuanceAccepted,
		"RCT": entity.IssuanceRejected,
		"RSC": entity.IssuanceRejected,
		"REC": entity.IssuanceProcessing,
		"SOK": entity.IssuanceProcessing,
	}
	for token, want := range cases {
		got, err := domsii.Classify(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}
}

func TestClassify_TokenDesconocido(t *testing.T) {
	_, err := domsii.Classify("XYZ")
	assert.ErrorIs(t, err, domain.ErrUnparseableResponse)
}

func TestAdvance_Transiciones(t *testing.T) {
	next, err := domsii.Advance(entity.IssuanceSubmitted, entity.SubmissionOutcome{Status: "REC"})
	require.NoError(t, err)
	assert.Equal(t, entity.IssuanceProcessing, next)

	next, err = domsii.Advance(entity.IssuanceProcessing, entity.SubmissionOutcome{Status: "EPR"})
	require.NoError(t, err)
	assert.Equal(t, entity.IssuanceAccepted, next)

	next, err = domsii.Advance(entity.IssuanceSubmitted, entity.SubmissionOutcome{Status: "RCT"})
	require.NoError(t, err)
	assert.Equal(t, entity.IssuanceRejected, next)
}

func TestAdvance_TerminalIdempotente(t *testing.T) {
	next, err := domsii.Advance(entity.IssuanceAccepted, entity.SubmissionOutcome{Status: "EPR"})
	require.NoError(t, err)
	assert.Equal(t, entity.IssuanceAccepted, next)
}

func TestAdvance_TransicionInvalida(t *testing.T) {
	_, err := domsii.Advance(entity.IssuanceAccepted, entity.SubmissionOutcome{Status: "RCT"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = domsii.Advance(entity.IssuanceBuilt, entity.SubmissionOutcome{Status: "EPR"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "un documento no enviado no recibe respuestas")

	_, err = domsii.Advance(entity.IssuanceVoided, entity.SubmissionOutcome{Status: "EPR"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, domsii.IsTerminal(entity.IssuanceAccepted))
	assert.True(t, domsii.IsTerminal(entity.IssuanceVoided))
	assert.False(t, domsii.IsTerminal(entity.IssuanceProcessing))
	assert.False(t, domsii.IsTerminal(entity.IssuanceBuilt))
}
