package ted

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/shopspring/decimal"
)

// Verify comprueba la firma del timbre con la llave pública del CAF.
func Verify(stamp *SignedStamp, pub *rsa.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(stamp.signature)
	if err != nil {
		return fmt.Errorf("%w: FRMT no es Base64", domain.ErrSigningFailure)
	}
	payload, err := sii.ToLatin1(stamp.dd)
	if err != nil {
		return fmt.Errorf("%w: DD: %v", domain.ErrSerialization, err)
	}
	h := sha1.Sum(payload)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], sig); err != nil {
		return fmt.Errorf("%w: firma del timbre no corresponde: %v", domain.ErrSigningFailure, err)
	}
	return nil
}

// PublicKeyFromCAF reconstruye la llave pública desde <RSAPK> (M y E en Base64).
func PublicKeyFromCAF(pk entity.RSAPublicKey) (*rsa.PublicKey, error) {
	m, err := base64.StdEncoding.DecodeString(strings.TrimSpace(pk.Modulus))
	if err != nil || len(m) == 0 {
		return nil, fmt.Errorf("%w: RSAPK/M inválido", domain.ErrSigningKeyInvalid)
	}
	e, err := base64.StdEncoding.DecodeString(strings.TrimSpace(pk.Exponent))
	if err != nil || len(e) == 0 {
		return nil, fmt.Errorf("%w: RSAPK/E inválido", domain.ErrSigningKeyInvalid)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("%w: exponente fuera de rango", domain.ErrSigningKeyInvalid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(m), E: int(exp.Int64())}, nil
}

// StampFields campos legibles de un timbre ya emitido.
type StampFields struct {
	IssuerRUT    string
	DocumentType int
	Folio        int64
	IssueDate    string
	ReceiverRUT  string
	ReceiverName string
	Total        decimal.Decimal
	FirstItem    string
	SignedAt     string
	Algorithm    string
	Signature    string
}

// ParseStamp lee un elemento <TED> y devuelve sus campos.
func ParseStamp(tedXML string) (*StampFields, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	if err := doc.ReadFromString(tedXML); err != nil {
		return nil, fmt.Errorf("%w: TED: %v", domain.ErrSerialization, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "TED" {
		return nil, fmt.Errorf("%w: se esperaba <TED>", domain.ErrSerialization)
	}
	dd := root.SelectElement("DD")
	if dd == nil {
		return nil, fmt.Errorf("%w: TED sin DD", domain.ErrSerialization)
	}
	text := func(tag string) string {
		if el := dd.SelectElement(tag); el != nil {
			return el.Text()
		}
		return ""
	}

	out := &StampFields{
		IssuerRUT:    text("RE"),
		IssueDate:    text("FE"),
		ReceiverRUT:  text("RR"),
		ReceiverName: text("RSR"),
		FirstItem:    text("IT1"),
		SignedAt:     text("TSTED"),
	}
	var err error
	if out.DocumentType, err = strconv.Atoi(text("TD")); err != nil {
		return nil, fmt.Errorf("%w: TD inválido", domain.ErrSerialization)
	}
	if out.Folio, err = strconv.ParseInt(text("F"), 10, 64); err != nil {
		return nil, fmt.Errorf("%w: F inválido", domain.ErrSerialization)
	}
	if out.Total, err = decimal.NewFromString(text("MNT")); err != nil {
		return nil, fmt.Errorf("%w: MNT inválido", domain.ErrSerialization)
	}
	if frmt := root.SelectElement("FRMT"); frmt != nil {
		out.Algorithm = frmt.SelectAttrValue("algoritmo", "")
		out.Signature = frmt.Text()
	}
	if _, err := time.Parse("2006-01-02T15:04:05", out.SignedAt); err != nil {
		return nil, fmt.Errorf("%w: TSTED inválido", domain.ErrSerialization)
	}
	return out, nil
}

// ExtractStamp recupera el timbre desde el XML de un DTE sin re-serializar el DD,
// de modo que la firma pueda verificarse sobre los mismos bytes.
func ExtractStamp(docXML string) (*SignedStamp, error) {
	start := strings.Index(docXML, "<DD>")
	end := strings.Index(docXML, "</DD>")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: documento sin DD", domain.ErrSerialization)
	}
	dd := docXML[start : end+len("</DD>")]

	const open = `<FRMT algoritmo="`
	rest := docXML[end:]
	i := strings.Index(rest, open)
	if i < 0 {
		return nil, fmt.Errorf("%w: documento sin FRMT", domain.ErrSerialization)
	}
	rest = rest[i+len(open):]
	q := strings.Index(rest, `">`)
	closeIdx := strings.Index(rest, "</FRMT>")
	if q < 0 || closeIdx < q {
		return nil, fmt.Errorf("%w: FRMT mal formado", domain.ErrSerialization)
	}
	return &SignedStamp{
		dd:        dd,
		algorithm: rest[:q],
		signature: rest[q+2 : closeIdx],
	}, nil
}
