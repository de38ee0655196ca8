package sii_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jhoicas/dte-api/internal/domain"
	infrasii "github.com/jhoicas/dte-api/internal/infrastructure/sii"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusEPR = `<?xml version="1.0" encoding="ISO-8859-1"?>
<SII:RESPUESTA xmlns:SII="http://www.sii.cl/XMLSchema">
  <SII:RESP_HDR>
    <ESTADO>EPR</ESTADO>
    <GLOSA>Envio Procesado</GLOSA>
    <NUM_ATENCION>123 ( 2024/03/01 10:31:00)</NUM_ATENCION>
  </SII:RESP_HDR>
  <SII:RESP_BODY>
    <CODIGO>0</CODIGO>
  </SII:RESP_BODY>
</SII:RESPUESTA>`

func statusServer(t *testing.T, h http.HandlerFunc) *infrasii.StatusClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return infrasii.NewStatusClient(2 * time.Second).WithEndpoints(map[string]infrasii.Endpoints{
		infrasii.EnvCert: {Status: srv.URL + "/status", Upload: srv.URL + "/upload"},
	})
}

func TestParseStatusResponse_EPR(t *testing.T) {
	out, err := infrasii.ParseStatusResponse([]byte(statusEPR))
	require.NoError(t, err)
	assert.Equal(t, "0", out.Code)
	assert.Equal(t, sii.StatusProcessed, out.Status)
	assert.Equal(t, "Envio Procesado", out.Message)
}

func TestParseStatusResponse_SinCodigo(t *testing.T) {
	_, err := infrasii.ParseStatusResponse([]byte(`<RESPUESTA><ESTADO>EPR</ESTADO></RESPUESTA>`))
	assert.ErrorIs(t, err, domain.ErrUnparseableResponse)

	_, err = infrasii.ParseStatusResponse([]byte(`<html>Servicio no disponible`))
	assert.ErrorIs(t, err, domain.ErrUnparseableResponse)
}

func TestParseStatusResponse_SoloCodigo(t *testing.T) {
	out, err := infrasii.ParseStatusResponse([]byte(`<RESPUESTA><CODIGO>-11</CODIGO></RESPUESTA>`))
	require.NoError(t, err)
	assert.Equal(t, "-11", out.Code)
	assert.Empty(t, out.Status)
	assert.Empty(t, out.Message)
}

func TestStatusClient_Query(t *testing.T) {
	var got *http.Request
	c := statusServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "text/xml")
		latin, _ := sii.ToLatin1(statusEPR)
		_, _ = w.Write(latin)
	})

	out, err := c.Query(context.Background(), "76000000-1", "998877", "TOKEN123", infrasii.EnvCert)
	require.NoError(t, err)
	assert.Equal(t, "998877", out.TrackID)
	assert.Equal(t, "EPR", out.Status)

	require.NotNil(t, got)
	assert.Equal(t, "76000000", got.URL.Query().Get("rutCompania"))
	assert.Equal(t, "1", got.URL.Query().Get("dvCompania"))
	assert.Equal(t, "998877", got.URL.Query().Get("trackId"))
	cookie, err := got.Cookie("TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "TOKEN123", cookie.Value)
}

func TestStatusClient_HTTP500EsTransporte(t *testing.T) {
	c := statusServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Query(context.Background(), "76000000-1", "1", "", infrasii.EnvCert)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.True(t, domain.IsRetryable(err))
}

func TestStatusClient_TimeoutEsTransporte(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	c := infrasii.NewStatusClient(50 * time.Millisecond).WithEndpoints(map[string]infrasii.Endpoints{
		infrasii.EnvCert: {Status: srv.URL},
	})

	_, err := c.Query(context.Background(), "76000000-1", "1", "", infrasii.EnvCert)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport, "un timeout se informa como falla de transporte")
}

func TestStatusClient_RespuestaIlegible(t *testing.T) {
	c := statusServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<RESPUESTA><GLOSA>sin codigo</GLOSA></RESPUESTA>`)
	})

	_, err := c.Query(context.Background(), "76000000-1", "1", "", infrasii.EnvCert)
	assert.ErrorIs(t, err, domain.ErrUnparseableResponse)
	assert.False(t, domain.IsRetryable(err))
}

func TestStatusClient_AmbienteDesconocido(t *testing.T) {
	_, err := infrasii.NewStatusClient(time.Second).Query(context.Background(), "76000000-1", "1", "", "qa")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
