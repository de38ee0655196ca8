package sii_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-api/internal/domain"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	infrasii "github.com/jhoicas/dte-api/internal/infrastructure/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/ted"
	"github.com/jhoicas/dte-api/internal/testutil"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

var (
	issueDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	signedAt  = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
)

func stamp(t *testing.T, folio int64) *ted.SignedStamp {
	t.Helper()
	caf, err := domsii.ParseCAF(testutil.CAF(t, testutil.CAFOptions{From: 1, To: 100}))
	require.NoError(t, err)
	s, err := ted.NewStampSigner().Sign(context.Background(), ted.StampInput{
		IssuerRUT:    testutil.IssuerRUT,
		DocumentType: 33,
		Folio:        folio,
		IssueDate:    issueDate,
		ReceiverRUT:  testutil.ReceiverRUT,
		ReceiverName: "Cliente de Prueba",
		FirstItem:    "Producto A",
		Total:        decimal.NewFromInt(1190),
		CAF:          caf.Fragment,
	}, caf.PrivateKey, signedAt)
	require.NoError(t, err)
	return s
}

func documentInput(t *testing.T, folio int64) *infrasii.DocumentInput {
	return &infrasii.DocumentInput{
		DocumentType: 33,
		Folio:        folio,
		IssueDate:    issueDate,
		Issuer: infrasii.Party{
			RUT: testutil.IssuerRUT, Name: "Empresa de Prueba SpA", Activity: "Servicios informáticos",
			ActivityCode: 620200, Address: "Av. Providencia 1234", Commune: "Providencia", City: "Santiago",
		},
		Receiver: infrasii.Party{RUT: testutil.ReceiverRUT, Name: "Cliente de Prueba", Address: "Calle 1", Commune: "Ñuñoa"},
		Totals: infrasii.Totals{
			Net:     decimal.NewFromInt(1000),
			VATRate: decimal.NewFromInt(19),
			VAT:     decimal.NewFromInt(190),
			Total:   decimal.NewFromInt(1190),
		},
		Items: []infrasii.LineItem{{
			Name: "Producto A", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(500), Amount: decimal.NewFromInt(1000),
		}},
		Stamp:    stamp(t, folio),
		SignedAt: signedAt,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Documento
// ──────────────────────────────────────────────────────────────────────────────

func TestXMLBuilder_EstructuraDelDocumento(t *testing.T) {
	in := documentInput(t, 7)
	out, err := infrasii.NewXMLBuilderService().Build(in)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(out))
	root := doc.Root()
	require.Equal(t, "DTE", root.Tag)
	assert.Equal(t, infrasii.NsSiiDte, root.SelectAttrValue("xmlns", ""))

	docEl := root.SelectElement("Documento")
	require.NotNil(t, docEl)
	assert.Equal(t, "F7T33", docEl.SelectAttrValue("ID", ""))

	assert.Equal(t, "33", docEl.FindElement("Encabezado/IdDoc/TipoDTE").Text())
	assert.Equal(t, "7", docEl.FindElement("Encabezado/IdDoc/Folio").Text())
	assert.Equal(t, "2024-03-01", docEl.FindElement("Encabezado/IdDoc/FchEmis").Text())
	assert.Equal(t, testutil.IssuerRUT, docEl.FindElement("Encabezado/Emisor/RUTEmisor").Text())
	assert.Equal(t, "620200", docEl.FindElement("Encabezado/Emisor/Acteco").Text())
	assert.Equal(t, "Ñuñoa", docEl.FindElement("Encabezado/Receptor/CmnaRecep").Text())
	assert.Equal(t, "1000", docEl.FindElement("Encabezado/Totales/MntNeto").Text())
	assert.Equal(t, "19", docEl.FindElement("Encabezado/Totales/TasaIVA").Text())
	assert.Equal(t, "190", docEl.FindElement("Encabezado/Totales/IVA").Text())
	assert.Equal(t, "1190", docEl.FindElement("Encabezado/Totales/MntTotal").Text())
	assert.Nil(t, docEl.FindElement("Encabezado/Totales/MntExe"), "sin exento no se informa MntExe")

	det := docEl.SelectElements("Detalle")
	require.Len(t, det, 1)
	assert.Equal(t, "1", det[0].SelectElement("NroLinDet").Text())
	assert.Equal(t, "Producto A", det[0].SelectElement("NmbItem").Text())
	assert.Equal(t, "1000", det[0].SelectElement("MontoItem").Text())

	assert.NotNil(t, docEl.SelectElement("TED"))
	assert.Equal(t, "2024-03-01T10:30:00", docEl.SelectElement("TmstFirma").Text())
}

// El TED se inserta sin re-serializar: el DD del documento sigue verificando.
func TestXMLBuilder_TimbreIntacto(t *testing.T) {
	in := documentInput(t, 7)
	out, err := infrasii.NewXMLBuilderService().Build(in)
	require.NoError(t, err)

	assert.Contains(t, out, in.Stamp.XML())
	got, err := ted.ExtractStamp(out)
	require.NoError(t, err)
	assert.Equal(t, in.Stamp.DD(), got.DD())
	assert.NotContains(t, out, "\n", "salida compacta")
}

func TestXMLBuilder_SoloExento(t *testing.T) {
	in := documentInput(t, 8)
	in.DocumentType = 34
	in.Totals = infrasii.Totals{Exempt: decimal.NewFromInt(5000), Total: decimal.NewFromInt(5000)}
	in.Items[0].Exempt = true

	out, err := infrasii.NewXMLBuilderService().Build(in)
	require.NoError(t, err)
	assert.Contains(t, out, "<MntExe>5000</MntExe>")
	assert.NotContains(t, out, "<MntNeto>")
	assert.NotContains(t, out, "<IVA>")
	assert.Contains(t, out, "<IndExe>1</IndExe>")
}

func TestXMLBuilder_CamposObligatorios(t *testing.T) {
	in := documentInput(t, 9)
	in.Receiver.Name = ""
	in.Stamp = nil

	_, err := infrasii.NewXMLBuilderService().Build(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSerialization)
	assert.Contains(t, err.Error(), "RznSocRecep")
	assert.Contains(t, err.Error(), "TED")
}

// Texto libre con caracteres fuera de ISO-8859-1 no debe impedir codificar el documento.
func TestXMLBuilder_TextoLibreEnLatin1(t *testing.T) {
	in := documentInput(t, 10)
	in.Issuer.Name = "Inversiones “El Roble” SpA"
	in.Receiver.Name = "Comercial O’Higgins Ltda."
	in.Receiver.Address = "Pasaje Los Aromos № 12"
	in.Items[0].Name = "Café ☕ premium"
	in.Items[0].Description = strings.Repeat("x", 1200)

	out, err := infrasii.NewXMLBuilderService().Build(in)
	require.NoError(t, err)
	_, err = sii.ToLatin1(out)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(out))
	docEl := doc.Root().SelectElement("Documento")
	assert.Equal(t, "Inversiones ?El Roble? SpA", docEl.FindElement("Encabezado/Emisor/RznSoc").Text())
	assert.Equal(t, "Comercial O?Higgins Ltda.", docEl.FindElement("Encabezado/Receptor/RznSocRecep").Text())
	assert.Equal(t, "Pasaje Los Aromos ? 12", docEl.FindElement("Encabezado/Receptor/DirRecep").Text())
	det := docEl.SelectElement("Detalle")
	assert.Equal(t, "Café ? premium", det.SelectElement("NmbItem").Text())
	assert.Len(t, det.SelectElement("DscItem").Text(), 1000)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "F125T61", infrasii.DocumentID(61, 125))
}

// ──────────────────────────────────────────────────────────────────────────────
// Sobre
// ──────────────────────────────────────────────────────────────────────────────

func envelopeInput(docs ...infrasii.SignedDocument) *infrasii.EnvelopeInput {
	return &infrasii.EnvelopeInput{
		IssuerRUT:        testutil.IssuerRUT,
		SenderRUT:        testutil.SenderRUT,
		ResolutionDate:   time.Date(2014, 8, 22, 0, 0, 0, 0, time.UTC),
		ResolutionNumber: 80,
		Timestamp:        signedAt,
		Documents:        docs,
	}
}

func TestEnvelope_TresFacturas(t *testing.T) {
	var docs []infrasii.SignedDocument
	for folio := int64(1); folio <= 3; folio++ {
		xml, err := infrasii.NewXMLBuilderService().Build(documentInput(t, folio))
		require.NoError(t, err)
		docs = append(docs, infrasii.SignedDocument{DocumentType: 33, XML: xml})
	}

	env, err := infrasii.NewEnvelopeBuilderService().Build(envelopeInput(docs...))
	require.NoError(t, err)

	require.Equal(t, []infrasii.SubTotal{{DocumentType: 33, Count: 3}}, env.SubTotals())
	out := env.XML()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="ISO-8859-1"?>`))
	assert.Contains(t, out, "<SubTotDTE><TpoDTE>33</TpoDTE><NroDTE>3</NroDTE></SubTotDTE>")
	assert.Contains(t, out, "<RutReceptor>60803000-K</RutReceptor>", "el receptor del sobre es el SII")
	assert.Contains(t, out, "<FchResol>2014-08-22</FchResol><NroResol>80</NroResol>")

	i1 := strings.Index(out, `ID="F1T33"`)
	i2 := strings.Index(out, `ID="F2T33"`)
	i3 := strings.Index(out, `ID="F3T33"`)
	assert.True(t, i1 > 0 && i1 < i2 && i2 < i3, "los documentos conservan el orden recibido")

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	require.NoError(t, doc.ReadFromString(out))
	set := doc.Root().SelectElement("SetDTE")
	require.NotNil(t, set)
	assert.Equal(t, infrasii.SetID, set.SelectAttrValue("ID", ""))
	assert.Len(t, set.SelectElements("DTE"), 3)
}

func TestEnvelope_SubtotalesPorTipo(t *testing.T) {
	env, err := infrasii.NewEnvelopeBuilderService().Build(envelopeInput(
		infrasii.SignedDocument{DocumentType: 61, XML: "<DTE/>"},
		infrasii.SignedDocument{DocumentType: 33, XML: `<?xml version="1.0"?><DTE/>`},
		infrasii.SignedDocument{DocumentType: 61, XML: "<DTE/>"},
	))
	require.NoError(t, err)
	assert.Equal(t, []infrasii.SubTotal{{DocumentType: 33, Count: 1}, {DocumentType: 61, Count: 2}}, env.SubTotals())
	i33 := strings.Index(env.XML(), "<SubTotDTE><TpoDTE>33</TpoDTE><NroDTE>1</NroDTE></SubTotDTE>")
	i61 := strings.Index(env.XML(), "<SubTotDTE><TpoDTE>61</TpoDTE><NroDTE>2</NroDTE></SubTotDTE>")
	assert.True(t, i33 > 0 && i33 < i61, "SubTotDTE en orden ascendente de tipo, no de aparición")
	assert.Equal(t, 1, strings.Count(env.XML(), "<?xml"), "solo la declaración del sobre")
}

func TestEnvelope_Vacio(t *testing.T) {
	_, err := infrasii.NewEnvelopeBuilderService().Build(envelopeInput())
	assert.ErrorIs(t, err, domain.ErrEmptyEnvelope)

	_, err = infrasii.NewEnvelopeBuilderService().Build(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyEnvelope)
}

func TestEnvelope_Latin1(t *testing.T) {
	env, err := infrasii.NewEnvelopeBuilderService().Build(envelopeInput(
		infrasii.SignedDocument{DocumentType: 33, XML: "<DTE><RznSocRecep>Peñalolén</RznSocRecep></DTE>"},
	))
	require.NoError(t, err)
	b, err := env.Latin1()
	require.NoError(t, err)
	assert.Less(t, len(b), len(env.XML()), "ñ y é ocupan un byte en ISO-8859-1")
}
