// Package sii contiene las reglas de dominio del motor de emisión DTE del SII (Chile):
// lectura del CAF, libro de folios y ciclo de vida del envío.
package sii

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// ParseCAF extrae el rango autorizado y las llaves desde el XML de autorización (CAF) entregado por el SII.
// Es un parseo estructural: las llaves se devuelven como texto, sin decodificar.
//
// RE, TD, D y H son obligatorios (ErrMalformedAuthorization); RSASK también (ErrMissingSigningKey).
// FA, RSAPK e IDK son opcionales.
func ParseCAF(data []byte) (*entity.AuthorizationRange, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: XML inválido: %v", domain.ErrMalformedAuthorization, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: documento sin raíz", domain.ErrMalformedAuthorization)
	}

	// Los datos autorizados viven en <DA>; un blob sin DA se lee desde la raíz.
	da := findElement(root, "DA")
	if da == nil {
		da = root
	}

	issuer := elementText(da, "RE")
	tdText := elementText(da, "TD")
	dText := elementText(da, "D")
	hText := elementText(da, "H")

	var missing []string
	for _, f := range []struct{ tag, val string }{{"RE", issuer}, {"TD", tdText}, {"D", dText}, {"H", hText}} {
		if f.val == "" {
			missing = append(missing, f.tag)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: faltan %s", domain.ErrMalformedAuthorization, strings.Join(missing, ", "))
	}

	dteType, err := strconv.Atoi(tdText)
	if err != nil || dteType <= 0 {
		return nil, fmt.Errorf("%w: TD %q no es un tipo de documento", domain.ErrMalformedAuthorization, tdText)
	}
	start, err := strconv.ParseInt(dText, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: folio inicial %q inválido", domain.ErrMalformedAuthorization, dText)
	}
	end, err := strconv.ParseInt(hText, 10, 64)
	if err != nil || end < 0 {
		return nil, fmt.Errorf("%w: folio final %q inválido", domain.ErrMalformedAuthorization, hText)
	}
	if start > end {
		return nil, fmt.Errorf("%w: rango invertido %d-%d", domain.ErrMalformedAuthorization, start, end)
	}

	privateKey := elementText(root, "RSASK")
	if privateKey == "" {
		return nil, fmt.Errorf("%w: RE %s TD %d", domain.ErrMissingSigningKey, issuer, dteType)
	}

	r := &entity.AuthorizationRange{
		IssuerRUT:    strings.ToUpper(issuer),
		DocumentType: dteType,
		FolioStart:   start,
		FolioEnd:     end,
		PrivateKey:   privateKey,
	}

	if fa := elementText(da, "FA"); fa != "" {
		t, err := time.Parse("2006-01-02", fa)
		if err != nil {
			return nil, fmt.Errorf("%w: FA %q no es fecha AAAA-MM-DD", domain.ErrMalformedAuthorization, fa)
		}
		r.AuthorizedAt = t
	}
	if pk := findElement(da, "RSAPK"); pk != nil {
		r.PublicKey = entity.RSAPublicKey{
			Modulus:  elementText(pk, "M"),
			Exponent: elementText(pk, "E"),
		}
	}
	if idk := elementText(da, "IDK"); idk != "" {
		if n, err := strconv.ParseInt(idk, 10, 64); err == nil {
			r.KeyID = n
		}
	}

	fragment, err := cafFragment(root)
	if err != nil {
		return nil, err
	}
	r.Fragment = fragment
	return r, nil
}

// cafFragment serializa el elemento <CAF> sin espacios entre etiquetas, tal como se embebe en el TED.
// Devuelve "" si el blob no trae <CAF> (el firmante lo rechaza).
func cafFragment(root *etree.Element) (string, error) {
	caf := root
	if root.Tag != "CAF" {
		caf = findElement(root, "CAF")
	}
	if caf == nil {
		return "", nil
	}
	frag := etree.NewDocument()
	frag.SetRoot(caf.Copy())
	frag.Indent(etree.NoIndent)
	out, err := frag.WriteToString()
	if err != nil {
		return "", fmt.Errorf("%w: serializar CAF: %v", domain.ErrMalformedAuthorization, err)
	}
	return out, nil
}

// findElement busca en profundidad el primer descendiente (o el propio elemento) con la etiqueta local tag.
func findElement(el *etree.Element, tag string) *etree.Element {
	if el.Tag == tag {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func elementText(el *etree.Element, tag string) string {
	found := findElement(el, tag)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.Text())
}
