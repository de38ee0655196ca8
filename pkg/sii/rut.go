package sii

import (
	"fmt"
	"strings"
)

// pesos del módulo 11 del SII, aplicados de derecha a izquierda sobre el cuerpo del RUT.
var rutWeights = [6]int{2, 3, 4, 5, 6, 7}

// SplitRUT separa un RUT ("76.000.000-0", "76000000-0") en cuerpo numérico y dígito verificador.
// No valida el dígito; para eso usar ValidateRUT.
func SplitRUT(rut string) (body, dv string, err error) {
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rut), ".", ""))
	idx := strings.LastIndex(clean, "-")
	if idx <= 0 || idx == len(clean)-1 {
		return "", "", fmt.Errorf("sii: RUT %q sin dígito verificador (formato 12345678-9)", rut)
	}
	body, dv = clean[:idx], clean[idx+1:]
	for _, r := range body {
		if r < '0' || r > '9' {
			return "", "", fmt.Errorf("sii: cuerpo de RUT %q no numérico", rut)
		}
	}
	if len(dv) != 1 || !(dv[0] == 'K' || (dv[0] >= '0' && dv[0] <= '9')) {
		return "", "", fmt.Errorf("sii: dígito verificador %q inválido", dv)
	}
	return body, dv, nil
}

// ComputeCheckDigit calcula el dígito verificador (módulo 11) para el cuerpo del RUT.
// Resultado 11 -> "0", 10 -> "K".
func ComputeCheckDigit(body string) (string, error) {
	if body == "" {
		return "", fmt.Errorf("sii: cuerpo de RUT vacío")
	}
	var sum int
	for i := 0; i < len(body); i++ {
		c := body[len(body)-1-i]
		if c < '0' || c > '9' {
			return "", fmt.Errorf("sii: cuerpo de RUT %q no numérico", body)
		}
		sum += int(c-'0') * rutWeights[i%len(rutWeights)]
	}
	switch r := 11 - sum%11; r {
	case 11:
		return "0", nil
	case 10:
		return "K", nil
	default:
		return string(rune('0' + r)), nil
	}
}

// ValidateRUT verifica que el dígito verificador del RUT sea correcto.
func ValidateRUT(rut string) error {
	body, dv, err := SplitRUT(rut)
	if err != nil {
		return err
	}
	expected, err := ComputeCheckDigit(body)
	if err != nil {
		return err
	}
	if dv != expected {
		return fmt.Errorf("sii: dígito verificador del RUT %s inválido: esperado %s, recibido %s", rut, expected, dv)
	}
	return nil
}
