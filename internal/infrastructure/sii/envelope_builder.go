package sii

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// Envelope sobre EnvioDTE armado. El XML es texto Go (UTF-8) con declaración ISO-8859-1;
// Latin1 produce los bytes que efectivamente se transmiten.
type Envelope struct {
	xml       string
	subTotals []SubTotal
}

// XML contenido del sobre.
func (e *Envelope) XML() string { return e.xml }

// SubTotals conteos por tipo de DTE, ordenados por tipo.
func (e *Envelope) SubTotals() []SubTotal { return e.subTotals }

// Latin1 codifica el sobre en ISO-8859-1.
func (e *Envelope) Latin1() ([]byte, error) {
	return sii.ToLatin1(e.xml)
}

// EnvelopeBuilderService arma el EnvioDTE con su carátula.
type EnvelopeBuilderService struct{}

// NewEnvelopeBuilderService crea el servicio.
func NewEnvelopeBuilderService() *EnvelopeBuilderService {
	return &EnvelopeBuilderService{}
}

// Build arma el sobre: carátula con SubTotDTE por tipo y luego los documentos en el orden recibido.
// Los documentos se insertan tal cual; solo se quita una declaración <?xml ...?> inicial.
func (s *EnvelopeBuilderService) Build(in *EnvelopeInput) (*Envelope, error) {
	if in == nil || len(in.Documents) == 0 {
		return nil, domain.ErrEmptyEnvelope
	}
	receiver := in.ReceiverRUT
	if receiver == "" {
		receiver = sii.AuthorityRUT
	}
	var missing []string
	if in.IssuerRUT == "" {
		missing = append(missing, "RutEmisor")
	}
	if in.SenderRUT == "" {
		missing = append(missing, "RutEnvia")
	}
	if in.ResolutionDate.IsZero() {
		missing = append(missing, "FchResol")
	}
	if in.Timestamp.IsZero() {
		missing = append(missing, "TmstFirmaEnv")
	}
	for i, d := range in.Documents {
		if d.DocumentType <= 0 || strings.TrimSpace(d.XML) == "" {
			missing = append(missing, fmt.Sprintf("documento[%d]", i))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: EnvioDTE sin %s", domain.ErrSerialization, strings.Join(missing, ", "))
	}

	subTotals := countByType(in.Documents)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="` + sii.Encoding + `"?>` + "\n")
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{
		Name: xml.Name{Local: "EnvioDTE"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns"}, Value: NsSiiDte},
			{Name: xml.Name{Local: "xmlns:xsi"}, Value: nsXsi},
			{Name: xml.Name{Local: "xsi:schemaLocation"}, Value: schemaLocationEnvio},
			{Name: xml.Name{Local: "version"}, Value: "1.0"},
		},
	}
	set := xml.StartElement{
		Name: xml.Name{Local: "SetDTE"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "ID"}, Value: SetID}},
	}
	_ = enc.EncodeToken(root)
	_ = enc.EncodeToken(set)

	_ = enc.EncodeToken(xml.StartElement{
		Name: xml.Name{Local: "Caratula"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "version"}, Value: "1.0"}},
	})
	writeEl(enc, "RutEmisor", in.IssuerRUT)
	writeEl(enc, "RutEnvia", in.SenderRUT)
	writeEl(enc, "RutReceptor", receiver)
	writeEl(enc, "FchResol", in.ResolutionDate.Format("2006-01-02"))
	writeEl(enc, "NroResol", strconv.Itoa(in.ResolutionNumber))
	writeEl(enc, "TmstFirmaEnv", in.Timestamp.Format("2006-01-02T15:04:05"))
	for _, st := range subTotals {
		start(enc, "SubTotDTE")
		writeEl(enc, "TpoDTE", strconv.Itoa(st.DocumentType))
		writeEl(enc, "NroDTE", strconv.Itoa(st.Count))
		end(enc, "SubTotDTE")
	}
	end(enc, "Caratula")

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	for _, d := range in.Documents {
		buf.WriteString(stripDeclaration(d.XML))
	}

	_ = enc.EncodeToken(set.End())
	_ = enc.EncodeToken(root.End())
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return &Envelope{xml: buf.String(), subTotals: subTotals}, nil
}

// countByType un SubTotDTE por tipo, en orden ascendente de TpoDTE.
func countByType(docs []SignedDocument) []SubTotal {
	counts := make(map[int]int)
	for _, d := range docs {
		counts[d.DocumentType]++
	}
	out := make([]SubTotal, 0, len(counts))
	for t, n := range counts {
		out = append(out, SubTotal{DocumentType: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentType < out[j].DocumentType })
	return out
}

func stripDeclaration(doc string) string {
	trimmed := strings.TrimLeft(doc, " \t\r\n")
	if strings.HasPrefix(trimmed, "<?xml") {
		if i := strings.Index(trimmed, "?>"); i >= 0 {
			return strings.TrimLeft(trimmed[i+2:], " \t\r\n")
		}
	}
	return doc
}
