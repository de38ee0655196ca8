package sii

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/shopspring/decimal"
)

// DocumentID valor del atributo ID de <Documento>, referenciado por la firma del DTE.
func DocumentID(dteType int, folio int64) string {
	return fmt.Sprintf("F%dT%d", folio, dteType)
}

// XMLBuilderService serializa el <DTE> con el timbre ya firmado (sin firma XMLDSig).
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// Build genera el <DTE> en el orden de etiquetas del esquema SII.
// No valida montos ni tasas: eso corresponde a quien calcula la factura.
func (s *XMLBuilderService) Build(in *DocumentInput) (string, error) {
	if err := validateDocument(in); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "DTE"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "version"}, Value: "1.0"},
			{Name: xml.Name{Local: "xmlns"}, Value: NsSiiDte},
		},
	}
	docEl := xml.StartElement{
		Name: xml.Name{Local: "Documento"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: DocumentID(in.DocumentType, in.Folio)}},
	}
	_ = enc.EncodeToken(root)
	_ = enc.EncodeToken(docEl)

	// ---- Encabezado
	start(enc, "Encabezado")
	start(enc, "IdDoc")
	writeEl(enc, "TipoDTE", strconv.Itoa(in.DocumentType))
	writeEl(enc, "Folio", strconv.FormatInt(in.Folio, 10))
	writeEl(enc, "FchEmis", in.IssueDate.Format("2006-01-02"))
	if in.DueDate != nil {
		writeEl(enc, "FchVenc", in.DueDate.Format("2006-01-02"))
	}
	end(enc, "IdDoc")

	start(enc, "Emisor")
	writeEl(enc, "RUTEmisor", in.Issuer.RUT)
	writeEl(enc, "RznSoc", text(in.Issuer.Name, 100))
	writeOpt(enc, "GiroEmis", text(in.Issuer.Activity, 80))
	if in.Issuer.ActivityCode > 0 {
		writeEl(enc, "Acteco", strconv.Itoa(in.Issuer.ActivityCode))
	}
	writeOpt(enc, "DirOrigen", text(in.Issuer.Address, 70))
	writeOpt(enc, "CmnaOrigen", text(in.Issuer.Commune, 20))
	writeOpt(enc, "CiudadOrigen", text(in.Issuer.City, 20))
	end(enc, "Emisor")

	start(enc, "Receptor")
	writeEl(enc, "RUTRecep", in.Receiver.RUT)
	writeEl(enc, "RznSocRecep", text(in.Receiver.Name, 100))
	writeOpt(enc, "GiroRecep", text(in.Receiver.Activity, 40))
	writeOpt(enc, "DirRecep", text(in.Receiver.Address, 70))
	writeOpt(enc, "CmnaRecep", text(in.Receiver.Commune, 20))
	writeOpt(enc, "CiudadRecep", text(in.Receiver.City, 20))
	end(enc, "Receptor")

	start(enc, "Totales")
	if in.Totals.Net.IsPositive() {
		writeEl(enc, "MntNeto", formatAmount(in.Totals.Net))
	}
	if in.Totals.Exempt.IsPositive() {
		writeEl(enc, "MntExe", formatAmount(in.Totals.Exempt))
	}
	if in.Totals.Net.IsPositive() {
		writeEl(enc, "TasaIVA", in.Totals.VATRate.String())
		writeEl(enc, "IVA", formatAmount(in.Totals.VAT))
	}
	writeEl(enc, "MntTotal", formatAmount(in.Totals.Total))
	end(enc, "Totales")
	end(enc, "Encabezado")

	// ---- Detalle
	for i, item := range in.Items {
		start(enc, "Detalle")
		writeEl(enc, "NroLinDet", strconv.Itoa(i+1))
		if item.Exempt {
			writeEl(enc, "IndExe", "1")
		}
		writeEl(enc, "NmbItem", text(item.Name, 80))
		writeOpt(enc, "DscItem", text(item.Description, 1000))
		if !item.Quantity.IsZero() {
			writeEl(enc, "QtyItem", item.Quantity.String())
		}
		writeOpt(enc, "UnmdItem", text(item.Unit, 4))
		if !item.UnitPrice.IsZero() {
			writeEl(enc, "PrcItem", item.UnitPrice.String())
		}
		writeEl(enc, "MontoItem", formatAmount(item.Amount))
		end(enc, "Detalle")
	}

	// ---- TED: bytes exactos del timbre firmado, sin pasar por el encoder
	if err := enc.Flush(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	buf.WriteString(in.Stamp.XML())

	writeEl(enc, "TmstFirma", in.SignedAt.Format("2006-01-02T15:04:05"))
	_ = enc.EncodeToken(docEl.End())
	_ = enc.EncodeToken(root.End())
	if err := enc.Flush(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return buf.String(), nil
}

func validateDocument(in *DocumentInput) error {
	if in == nil {
		return fmt.Errorf("%w: documento nulo", domain.ErrSerialization)
	}
	var missing []string
	if in.DocumentType <= 0 {
		missing = append(missing, "TipoDTE")
	}
	if in.Folio <= 0 {
		missing = append(missing, "Folio")
	}
	if in.IssueDate.IsZero() {
		missing = append(missing, "FchEmis")
	}
	if in.Issuer.RUT == "" {
		missing = append(missing, "RUTEmisor")
	}
	if in.Issuer.Name == "" {
		missing = append(missing, "RznSoc")
	}
	if in.Receiver.RUT == "" {
		missing = append(missing, "RUTRecep")
	}
	if in.Receiver.Name == "" {
		missing = append(missing, "RznSocRecep")
	}
	if len(in.Items) == 0 {
		missing = append(missing, "Detalle")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" {
			missing = append(missing, fmt.Sprintf("Detalle[%d].NmbItem", i+1))
		}
	}
	if in.Stamp == nil {
		missing = append(missing, "TED")
	}
	if in.SignedAt.IsZero() {
		missing = append(missing, "TmstFirma")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: DTE sin %s", domain.ErrSerialization, strings.Join(missing, ", "))
	}
	return nil
}

func start(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: local}})
}

func end(enc *xml.Encoder, local string) {
	_ = enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: local}})
}

func writeEl(enc *xml.Encoder, local, value string) {
	start(enc, local)
	_ = enc.EncodeToken(xml.CharData(value))
	end(enc, local)
}

// writeOpt omite la etiqueta si el valor está vacío (campos opcionales del esquema).
func writeOpt(enc *xml.Encoder, local, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	writeEl(enc, local, value)
}

// formatAmount montos en pesos: enteros, sin separadores.
func formatAmount(d decimal.Decimal) string {
	return d.Round(0).String()
}

// text deja el texto libre en ISO-8859-1 (lo que no existe pasa a '?') y en el largo del esquema.
// El sobre completo se codifica en Latin-1 después de asignar folio: aquí no puede quedar nada irrepresentable.
func text(s string, n int) string {
	return sii.SanitizeLatin1(s, n)
}
