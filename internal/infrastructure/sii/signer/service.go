// Servicio de firma XMLDSig (RSA-SHA1, C14N) para DTE y EnvioDTE del SII.
// La <Signature> se inserta como último hijo del elemento raíz y referencia el elemento con ID.

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/ucarion/c14n"
)

// DigitalSignatureService implementa sii.Sealer.
type DigitalSignatureService struct{}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService() *DigitalSignatureService {
	return &DigitalSignatureService{}
}

// Seal firma el elemento ID=referenceID de xmlDoc e inserta <Signature> antes del cierre de la raíz.
// El resto del texto de xmlDoc no se modifica.
func (s *DigitalSignatureService) Seal(xmlDoc, referenceID string, cert tls.Certificate) (string, error) {
	if strings.TrimSpace(xmlDoc) == "" {
		return "", fmt.Errorf("%w: XML vacío", domain.ErrSerialization)
	}
	if len(cert.Certificate) == 0 {
		return "", fmt.Errorf("%w: sin certificado", domain.ErrSigningKeyInvalid)
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("%w: el certificado debe incluir llave privada RSA", domain.ErrSigningKeyInvalid)
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return "", fmt.Errorf("%w: parsear certificado: %v", domain.ErrSigningKeyInvalid, err)
	}

	doc, err := parse(xmlDoc)
	if err != nil {
		return "", err
	}
	root := doc.Root()
	target := findByID(root, referenceID)
	if target == nil {
		return "", fmt.Errorf("%w: no existe elemento ID=%q", domain.ErrSerialization, referenceID)
	}

	// 1) Digest del elemento referenciado (C14N con los namespaces heredados)
	canonicalRef, err := canonicalElement(target)
	if err != nil {
		return "", err
	}
	digest := sha1.Sum(canonicalRef)
	signedInfoXML := buildSignedInfo(referenceID, base64.StdEncoding.EncodeToString(digest[:]))

	// 2) SignedInfo canónico tal como quedará dentro del documento
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(`<Signature xmlns="` + NamespaceDS + `">` + signedInfoXML + `</Signature>`); err != nil {
		return "", fmt.Errorf("%w: SignedInfo: %v", domain.ErrSerialization, err)
	}
	sigEl := sigDoc.Root()
	root.AddChild(sigEl)
	canonicalSI, err := canonicalElement(sigEl.SelectElement("SignedInfo"))
	if err != nil {
		return "", err
	}
	h := sha1.Sum(canonicalSI)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, h[:])
	if err != nil {
		return "", fmt.Errorf("%w: firmar SignedInfo: %v", domain.ErrSigningFailure, err)
	}

	// 3) Signature completa con KeyInfo (RSAKeyValue + X509Certificate)
	signatureXML := buildSignature(signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue), &priv.PublicKey,
		base64.StdEncoding.EncodeToString(x509Cert.Raw))

	closeTag := "</" + root.FullTag() + ">"
	idx := strings.LastIndex(xmlDoc, closeTag)
	if idx < 0 {
		return "", fmt.Errorf("%w: no se encontró %s", domain.ErrSerialization, closeTag)
	}
	return xmlDoc[:idx] + signatureXML + xmlDoc[idx:], nil
}

// Verify comprueba la firma que referencia ID=referenceID. Si pub es nil se usa el
// certificado incluido en KeyInfo.
func Verify(xmlDoc, referenceID string, pub *rsa.PublicKey) error {
	doc, err := parse(xmlDoc)
	if err != nil {
		return err
	}
	root := doc.Root()
	sigEl := findSignature(root, "#"+referenceID)
	if sigEl == nil {
		return fmt.Errorf("%w: no hay Signature para #%s", domain.ErrSigningFailure, referenceID)
	}
	si := sigEl.SelectElement("SignedInfo")
	digestEl := si.FindElement("./Reference/DigestValue")
	valueEl := sigEl.SelectElement("SignatureValue")
	if digestEl == nil || valueEl == nil {
		return fmt.Errorf("%w: Signature incompleta", domain.ErrSigningFailure)
	}

	target := findByID(root, referenceID)
	if target == nil {
		return fmt.Errorf("%w: no existe elemento ID=%q", domain.ErrSerialization, referenceID)
	}
	canonicalRef, err := canonicalElement(target)
	if err != nil {
		return err
	}
	digest := sha1.Sum(canonicalRef)
	if base64.StdEncoding.EncodeToString(digest[:]) != strings.TrimSpace(digestEl.Text()) {
		return fmt.Errorf("%w: DigestValue no coincide (documento alterado)", domain.ErrSigningFailure)
	}

	if pub == nil {
		certEl := sigEl.FindElement("./KeyInfo/X509Data/X509Certificate")
		if certEl == nil {
			return fmt.Errorf("%w: Signature sin certificado", domain.ErrSigningFailure)
		}
		der, err := base64.StdEncoding.DecodeString(compact(certEl.Text()))
		if err != nil {
			return fmt.Errorf("%w: X509Certificate: %v", domain.ErrSigningFailure, err)
		}
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return fmt.Errorf("%w: X509Certificate: %v", domain.ErrSigningFailure, err)
		}
		rsaPub, ok := c.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: el certificado no es RSA", domain.ErrSigningFailure)
		}
		pub = rsaPub
	}

	canonicalSI, err := canonicalElement(si)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(compact(valueEl.Text()))
	if err != nil {
		return fmt.Errorf("%w: SignatureValue: %v", domain.ErrSigningFailure, err)
	}
	h := sha1.Sum(canonicalSI)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], sig); err != nil {
		return fmt.Errorf("%w: SignatureValue no corresponde: %v", domain.ErrSigningFailure, err)
	}
	return nil
}

// parse lee el XML como texto Go: la declaración ISO-8859-1 describe los bytes que se
// transmitirán, no el string que se firma.
func parse(xmlDoc string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := doc.ReadFromString(xmlDoc); err != nil {
		return nil, fmt.Errorf("%w: parsear XML: %v", domain.ErrSerialization, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: documento sin raíz", domain.ErrSerialization)
	}
	return doc, nil
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

// canonicalElement serializa el elemento como raíz, con las declaraciones de namespace
// vigentes en su posición, y aplica C14N.
func canonicalElement(el *etree.Element) ([]byte, error) {
	cp := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) {
				continue
			}
			if cp.SelectAttr(a.FullKey()) == nil {
				cp.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(cp)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: serializar %s: %v", domain.ErrSerialization, el.Tag, err)
	}
	out, err := canonicalizeXML(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: C14N %s: %v", domain.ErrSerialization, el.Tag, err)
	}
	return out, nil
}

func isNamespaceDecl(a etree.Attr) bool {
	return (a.Space == "" && a.Key == "xmlns") || a.Space == "xmlns"
}

func findByID(el *etree.Element, id string) *etree.Element {
	if el.SelectAttrValue("ID", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func findSignature(el *etree.Element, uri string) *etree.Element {
	if el.Tag == "Signature" {
		if ref := el.FindElement("./SignedInfo/Reference"); ref != nil && ref.SelectAttrValue("URI", "") == uri {
			return el
		}
	}
	for _, child := range el.ChildElements() {
		if found := findSignature(child, uri); found != nil {
			return found
		}
	}
	return nil
}

func buildSignedInfo(referenceID, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo>`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"/>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"/>`)
	sb.WriteString(`<Reference URI="#` + referenceID + `">`)
	sb.WriteString(`<Transforms><Transform Algorithm="` + AlgC14N + `"/></Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"/>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64 string, pub *rsa.PublicKey, certB64 string) string {
	modulus := base64.StdEncoding.EncodeToString(pub.N.Bytes())
	exponent := base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())

	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><KeyValue><RSAKeyValue>`)
	sb.WriteString(`<Modulus>` + modulus + `</Modulus><Exponent>` + exponent + `</Exponent>`)
	sb.WriteString(`</RSAKeyValue></KeyValue>`)
	sb.WriteString(`<X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data>`)
	sb.WriteString(`</KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

var _ sii.Sealer = (*DigitalSignatureService)(nil)
