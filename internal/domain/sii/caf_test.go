package sii_test

import (
	"strings"
	"testing"

	"github.com/jhoicas/dte-api/internal/domain"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	"github.com/jhoicas/dte-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCAF_Completo(t *testing.T) {
	data := testutil.CAF(t, testutil.CAFOptions{DocumentType: 33, From: 1, To: 100})

	r, err := domsii.ParseCAF(data)
	require.NoError(t, err)

	assert.Equal(t, testutil.IssuerRUT, r.IssuerRUT)
	assert.Equal(t, 33, r.DocumentType)
	assert.EqualValues(t, 1, r.FolioStart)
	assert.EqualValues(t, 100, r.FolioEnd)
	assert.EqualValues(t, 100, r.Size())
	assert.Equal(t, "2024-01-15", r.AuthorizedAt.Format("2006-01-02"))
	assert.EqualValues(t, 100, r.KeyID)
	assert.NotEmpty(t, r.PublicKey.Modulus)
	assert.Equal(t, "AQAB", r.PublicKey.Exponent, "exponente 65537 en base64")
	assert.Contains(t, r.PrivateKey, "BEGIN RSA PRIVATE KEY")
}

func TestParseCAF_FragmentoCompacto(t *testing.T) {
	r, err := domsii.ParseCAF(testutil.CAF(t, testutil.CAFOptions{From: 1, To: 10}))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(r.Fragment, `<CAF version="1.0"><DA><RE>`), "fragmento: %s", r.Fragment)
	assert.True(t, strings.HasSuffix(r.Fragment, "</FRMA></CAF>"))
	assert.NotContains(t, r.Fragment, "\n", "el CAF se embebe sin saltos de línea")
	assert.NotContains(t, r.Fragment, "RSASK", "la llave privada no viaja en el TED")
}

func TestParseCAF_SinRango_EsMalformado(t *testing.T) {
	data := []byte(`<AUTORIZACION><CAF><DA><RE>76000000-1</RE><TD>33</TD></DA></CAF><RSASK>x</RSASK></AUTORIZACION>`)

	_, err := domsii.ParseCAF(data)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedAuthorization)
	assert.Contains(t, err.Error(), "D, H")
}

func TestParseCAF_SinLlavePrivada(t *testing.T) {
	data := []byte(`<AUTORIZACION><CAF><DA><RE>76000000-1</RE><TD>33</TD><RNG><D>1</D><H>5</H></RNG></DA></CAF></AUTORIZACION>`)

	_, err := domsii.ParseCAF(data)
	assert.ErrorIs(t, err, domain.ErrMissingSigningKey)
}

func TestParseCAF_RangoInvertido(t *testing.T) {
	data := []byte(`<AUTORIZACION><CAF><DA><RE>76000000-1</RE><TD>33</TD><RNG><D>9</D><H>5</H></RNG></DA></CAF><RSASK>x</RSASK></AUTORIZACION>`)

	_, err := domsii.ParseCAF(data)
	assert.ErrorIs(t, err, domain.ErrMalformedAuthorization)
}

func TestParseCAF_XMLInvalido(t *testing.T) {
	_, err := domsii.ParseCAF([]byte("no es xml <"))
	assert.ErrorIs(t, err, domain.ErrMalformedAuthorization)
}

func TestParseCAF_FechaInvalida(t *testing.T) {
	data := []byte(`<AUTORIZACION><CAF><DA><RE>76000000-1</RE><TD>33</TD><RNG><D>1</D><H>5</H></RNG><FA>15/01/2024</FA></DA></CAF><RSASK>x</RSASK></AUTORIZACION>`)

	_, err := domsii.ParseCAF(data)
	assert.ErrorIs(t, err, domain.ErrMalformedAuthorization)
}
