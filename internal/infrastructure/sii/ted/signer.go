// Package ted construye y firma el Timbre Electrónico del DTE (TED).
//
// El bloque <DD> se arma como texto compacto en un orden fijo y la firma SHA1withRSA
// se calcula sobre sus bytes ISO-8859-1 exactos. Cualquier cambio de orden, espacios o
// truncado invalida el timbre ante el SII.
package ted

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/shopspring/decimal"
)

// Largo máximo (en caracteres Latin-1) de RSR e IT1 dentro del DD.
const (
	MaxReceiverName = 40
	MaxItemName     = 40
)

// StampInput datos del documento que cubre el timbre. Todos son obligatorios.
type StampInput struct {
	IssuerRUT    string
	DocumentType int
	Folio        int64
	IssueDate    time.Time
	ReceiverRUT  string
	ReceiverName string
	FirstItem    string
	Total        decimal.Decimal
	CAF          string // elemento <CAF> tal cual viene en la autorización
}

// SignedStamp timbre firmado. Inmutable: un reenvío reutiliza exactamente estos bytes.
type SignedStamp struct {
	dd        string
	signature string
	algorithm string
}

// DD bloque de datos firmado.
func (s *SignedStamp) DD() string { return s.dd }

// Signature firma en Base64.
func (s *SignedStamp) Signature() string { return s.signature }

// Algorithm identificador del algoritmo (SHA1withRSA).
func (s *SignedStamp) Algorithm() string { return s.algorithm }

// XML elemento <TED> completo, listo para insertar en el <Documento>.
func (s *SignedStamp) XML() string {
	var sb strings.Builder
	sb.WriteString(`<TED version="1.0">`)
	sb.WriteString(s.dd)
	sb.WriteString(`<FRMT algoritmo="` + s.algorithm + `">`)
	sb.WriteString(s.signature)
	sb.WriteString(`</FRMT></TED>`)
	return sb.String()
}

// StampSigner firma timbres con la llave privada del CAF.
type StampSigner struct{}

// NewStampSigner crea el firmante.
func NewStampSigner() *StampSigner {
	return &StampSigner{}
}

// Sign arma el DD a partir de in y lo firma con privateKeyPEM (RSASK del CAF).
// at es el timestamp TSTED; con el mismo at el resultado es idéntico byte a byte.
func (s *StampSigner) Sign(ctx context.Context, in StampInput, privateKeyPEM string, at time.Time) (*SignedStamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dd, err := BuildDD(in, at)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	payload, err := sii.ToLatin1(dd)
	if err != nil {
		return nil, fmt.Errorf("%w: DD: %v", domain.ErrSerialization, err)
	}
	h := sha1.Sum(payload)
	sig, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, h[:])
	if err != nil {
		return nil, fmt.Errorf("%w: SHA1withRSA: %v", domain.ErrSigningFailure, err)
	}
	return &SignedStamp{
		dd:        dd,
		signature: base64.StdEncoding.EncodeToString(sig),
		algorithm: sii.StampAlgorithm,
	}, nil
}

// BuildDD arma el bloque <DD> en el orden RE, TD, F, FE, RR, RSR, MNT, IT1, CAF, TSTED.
// RSR e IT1 se recortan antes de firmar.
func BuildDD(in StampInput, at time.Time) (string, error) {
	if err := validate(in); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("<DD>")
	writeTag(&sb, "RE", in.IssuerRUT)
	writeTag(&sb, "TD", strconv.Itoa(in.DocumentType))
	writeTag(&sb, "F", strconv.FormatInt(in.Folio, 10))
	writeTag(&sb, "FE", in.IssueDate.Format("2006-01-02"))
	writeTag(&sb, "RR", in.ReceiverRUT)
	writeTag(&sb, "RSR", sii.SanitizeLatin1(in.ReceiverName, MaxReceiverName))
	writeTag(&sb, "MNT", in.Total.Round(0).String())
	writeTag(&sb, "IT1", sii.SanitizeLatin1(in.FirstItem, MaxItemName))
	sb.WriteString(in.CAF)
	writeTag(&sb, "TSTED", at.Format("2006-01-02T15:04:05"))
	sb.WriteString("</DD>")
	return sb.String(), nil
}

func validate(in StampInput) error {
	var missing []string
	if in.IssuerRUT == "" {
		missing = append(missing, "RE")
	}
	if in.DocumentType <= 0 {
		missing = append(missing, "TD")
	}
	if in.Folio <= 0 {
		missing = append(missing, "F")
	}
	if in.IssueDate.IsZero() {
		missing = append(missing, "FE")
	}
	if in.ReceiverRUT == "" {
		missing = append(missing, "RR")
	}
	if strings.TrimSpace(in.ReceiverName) == "" {
		missing = append(missing, "RSR")
	}
	if strings.TrimSpace(in.FirstItem) == "" {
		missing = append(missing, "IT1")
	}
	if in.Total.IsNegative() {
		missing = append(missing, "MNT")
	}
	if !strings.HasPrefix(strings.TrimSpace(in.CAF), "<CAF") {
		missing = append(missing, "CAF")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: timbre sin %s", domain.ErrSerialization, strings.Join(missing, ", "))
	}
	return nil
}

// ParsePrivateKey decodifica la llave RSASK (PKCS#1, o PKCS#8 como alternativa).
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(privateKeyPEM)))
	if block == nil {
		return nil, fmt.Errorf("%w: RSASK no es PEM", domain.ErrSigningKeyInvalid)
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningKeyInvalid, err)
	}
	rsaKey, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: la llave no es RSA", domain.ErrSigningKeyInvalid)
	}
	return rsaKey, nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func writeTag(sb *strings.Builder, tag, value string) {
	sb.WriteString("<" + tag + ">")
	sb.WriteString(xmlEscaper.Replace(value))
	sb.WriteString("</" + tag + ">")
}
