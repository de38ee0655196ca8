package sii

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Encoding declaración de codificación exigida por el SII en DTE y EnvioDTE.
const Encoding = "ISO-8859-1"

// CharsetReader permite a encoding/xml (y etree) leer documentos declarados en Latin-1,
// como los CAF descargados del SII.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	case "utf-8", "utf8", "":
		return input, nil
	}
	return nil, fmt.Errorf("sii: codificación no soportada %q", label)
}

// ToLatin1 codifica s en ISO-8859-1. Falla si s contiene caracteres fuera de Latin-1.
func ToLatin1(s string) ([]byte, error) {
	b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("sii: texto no representable en ISO-8859-1: %w", err)
	}
	return b, nil
}

// FromLatin1 decodifica bytes ISO-8859-1 a string UTF-8.
func FromLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// SanitizeLatin1 reemplaza por '?' los caracteres que no existen en ISO-8859-1
// y recorta a maxRunes caracteres (0 = sin límite).
func SanitizeLatin1(s string, maxRunes int) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if maxRunes > 0 && n == maxRunes {
			break
		}
		if _, ok := charmap.ISO8859_1.EncodeRune(r); !ok {
			r = '?'
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
