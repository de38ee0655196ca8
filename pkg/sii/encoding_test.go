package sii_test

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLatin1_UnBytePorCaracter(t *testing.T) {
	b, err := sii.ToLatin1("Ñuñoa café")
	require.NoError(t, err)
	assert.Len(t, b, len([]rune("Ñuñoa café")))
	assert.Equal(t, byte(0xD1), b[0], "Ñ es 0xD1 en ISO-8859-1")

	back, err := sii.FromLatin1(b)
	require.NoError(t, err)
	assert.Equal(t, "Ñuñoa café", back)
}

func TestToLatin1_FueraDeRango(t *testing.T) {
	_, err := sii.ToLatin1("precio 10€")
	assert.Error(t, err, "€ no existe en ISO-8859-1")
}

func TestSanitizeLatin1_ReemplazaYRecorta(t *testing.T) {
	assert.Equal(t, "Caf? ?", sii.SanitizeLatin1("  Caf€ ☃ ", 0))
	assert.Equal(t, "Ñand", sii.SanitizeLatin1("Ñandú", 4))
	assert.Equal(t, "", sii.SanitizeLatin1("   ", 10))
}

func TestCharsetReader_DecodificaLatin1(t *testing.T) {
	raw, err := sii.ToLatin1(`<?xml version="1.0" encoding="ISO-8859-1"?><RS>Peñalolén</RS>`)
	require.NoError(t, err)

	dec := xml.NewDecoder(strings.NewReader(string(raw)))
	dec.CharsetReader = sii.CharsetReader
	var v struct {
		Text string `xml:",chardata"`
	}
	require.NoError(t, dec.Decode(&v))
	assert.Equal(t, "Peñalolén", v.Text)
}

func TestCharsetReader_Desconocido(t *testing.T) {
	_, err := sii.CharsetReader("shift_jis", io.NopCloser(strings.NewReader("")))
	assert.Error(t, err)
}
