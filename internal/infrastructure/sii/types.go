// Package sii implementa el armado de DTE y EnvioDTE y la comunicación HTTP con el SII (Chile).
package sii

import (
	"time"

	"github.com/jhoicas/dte-api/internal/infrastructure/sii/ted"
	"github.com/shopspring/decimal"
)

// Namespaces del formato SII.
const (
	NsSiiDte = "http://www.sii.cl/SiiDte"
	nsXsi    = "http://www.w3.org/2001/XMLSchema-instance"

	schemaLocationEnvio = "http://www.sii.cl/SiiDte EnvioDTE_v10.xsd"

	// SetID valor del atributo ID de <SetDTE>, referenciado por la firma del sobre.
	SetID = "SetDoc"
)

// Ambientes del SII.
const (
	EnvCert = "cert" // Maullin, certificación
	EnvProd = "prod" // Palena, producción
)

// Endpoints URLs de un ambiente del SII.
type Endpoints struct {
	Upload string // recepción de EnvioDTE (multipart)
	Status string // consulta de estado por TrackID
}

// DefaultEndpoints URLs por ambiente.
var DefaultEndpoints = map[string]Endpoints{
	EnvCert: {
		Upload: "https://maullin.sii.cl/cgi_dte/UPL/DTEUpload",
		Status: "https://maullin.sii.cl/cgi_dte/UPL/QueryEstUp",
	},
	EnvProd: {
		Upload: "https://palena.sii.cl/cgi_dte/UPL/DTEUpload",
		Status: "https://palena.sii.cl/cgi_dte/UPL/QueryEstUp",
	},
}

// Party emisor o receptor del documento.
type Party struct {
	RUT          string
	Name         string // RznSoc / RznSocRecep
	Activity     string // Giro
	ActivityCode int    // Acteco (solo emisor)
	Address      string
	Commune      string
	City         string
}

// Totals montos ya calculados por el llamador (CLP, enteros).
type Totals struct {
	Net     decimal.Decimal // MntNeto
	Exempt  decimal.Decimal // MntExe
	VATRate decimal.Decimal // TasaIVA (19)
	VAT     decimal.Decimal // IVA
	Total   decimal.Decimal // MntTotal
}

// LineItem línea de detalle.
type LineItem struct {
	Name        string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	Exempt      bool
}

// DocumentInput todo lo necesario para serializar un <DTE>.
type DocumentInput struct {
	DocumentType int
	Folio        int64
	IssueDate    time.Time
	DueDate      *time.Time
	Issuer       Party
	Receiver     Party
	Totals       Totals
	Items        []LineItem
	Stamp        *ted.SignedStamp
	SignedAt     time.Time // TmstFirma
}

// SignedDocument DTE ya firmado, tratado como texto opaco por el sobre.
type SignedDocument struct {
	DocumentType int
	XML          string
}

// EnvelopeInput metadatos de la carátula y documentos a enviar, en orden.
type EnvelopeInput struct {
	IssuerRUT        string // RutEmisor
	SenderRUT        string // RutEnvia (dueño del certificado)
	ReceiverRUT      string // RutReceptor; vacío = SII
	ResolutionDate   time.Time
	ResolutionNumber int
	Timestamp        time.Time // TmstFirmaEnv
	Documents        []SignedDocument
}

// SubTotal conteo de documentos de un tipo en el sobre.
type SubTotal struct {
	DocumentType int
	Count        int
}
