// Package sii contiene catálogos y utilidades del formato de Documentos Tributarios
// Electrónicos del Servicio de Impuestos Internos (Chile).
package sii

// =============================================================================
// Tipos de DTE (códigos TipoDTE / TD)
// =============================================================================

const (
	DTEFactura       = 33 // Factura electrónica
	DTEFacturaExenta = 34 // Factura no afecta o exenta electrónica
	DTEBoleta        = 39 // Boleta electrónica
	DTEBoletaExenta  = 41 // Boleta exenta electrónica
	DTEFacturaCompra = 46 // Factura de compra electrónica
	DTEGuiaDespacho  = 52 // Guía de despacho electrónica
	DTENotaDebito    = 56 // Nota de débito electrónica
	DTENotaCredito   = 61 // Nota de crédito electrónica
)

// DocumentTypeNames nombres legibles de los tipos soportados.
var DocumentTypeNames = map[int]string{
	DTEFactura:       "Factura Electrónica",
	DTEFacturaExenta: "Factura No Afecta o Exenta Electrónica",
	DTEBoleta:        "Boleta Electrónica",
	DTEBoletaExenta:  "Boleta Exenta Electrónica",
	DTEFacturaCompra: "Factura de Compra Electrónica",
	DTEGuiaDespacho:  "Guía de Despacho Electrónica",
	DTENotaDebito:    "Nota de Débito Electrónica",
	DTENotaCredito:   "Nota de Crédito Electrónica",
}

// AuthorityRUT RUT del SII, receptor de todo envío de DTE.
const AuthorityRUT = "60803000-K"

// StampAlgorithm algoritmo de firma del TED y del CAF (impuesto por el SII).
const StampAlgorithm = "SHA1withRSA"

// =============================================================================
// Estados de envío (ESTADO en la consulta de estado de un TrackID)
// =============================================================================

const (
	StatusReceived          = "REC" // Envío recibido
	StatusSchemaOK          = "SOK" // Esquema validado
	StatusCoverOK           = "CRT" // Carátula OK
	StatusSignatureOK       = "FOK" // Firma de envío validada
	StatusInProcess         = "PDR" // Envío en proceso
	StatusPending           = "PRD" // Envío pendiente de procesar
	StatusProcessed         = "EPR" // Envío procesado
	StatusAcceptedRepairs   = "RPR" // Aceptado con reparos
	StatusAcceptedMinor     = "RLV" // Aceptado con reparos leves
	StatusDocumentOK        = "DOK" // Documento recibido por el SII
	StatusRejectedSchema    = "RSC" // Rechazado por error en schema
	StatusRejectedSignature = "RFR" // Rechazado por error en firma
	StatusRejectedCover     = "RCT" // Rechazado por error en carátula
	StatusRejectedRUT       = "RCS" // Rechazado por error en RUT del emisor/envío
	StatusRejectedRepeated  = "RPT" // Repetido, rechazado
	StatusRejectedOther     = "RCO" // Rechazado por consistencia
	StatusRejectedCAF       = "VOF" // Archivo no válido o folio no autorizado
	StatusRejectedDocument  = "RCH" // DTE rechazado
	StatusRejectedNotFound  = "FAN" // Documento no recibido por el SII
	StatusRejectedUnknown   = "99"  // Envío rechazado por error no catalogado
)

// ProcessingStatuses estados en que el SII aún no termina de validar el envío.
var ProcessingStatuses = map[string]bool{
	StatusReceived: true, StatusSchemaOK: true, StatusCoverOK: true,
	StatusSignatureOK: true, StatusInProcess: true, StatusPending: true,
}

// AcceptedStatuses estados finales de aceptación.
var AcceptedStatuses = map[string]bool{
	StatusProcessed: true, StatusAcceptedRepairs: true, StatusAcceptedMinor: true,
	StatusDocumentOK: true,
}

// RejectedStatuses estados finales de rechazo.
var RejectedStatuses = map[string]bool{
	StatusRejectedSchema: true, StatusRejectedSignature: true, StatusRejectedCover: true,
	StatusRejectedRUT: true, StatusRejectedRepeated: true, StatusRejectedOther: true,
	StatusRejectedCAF: true, StatusRejectedDocument: true, StatusRejectedNotFound: true,
	StatusRejectedUnknown: true,
}
