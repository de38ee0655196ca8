package dto

import "github.com/shopspring/decimal"

// PartyRequest emisor o receptor en la solicitud de emisión.
type PartyRequest struct {
	RUT          string `json:"rut"`
	Name         string `json:"name"`
	Activity     string `json:"activity,omitempty"`
	ActivityCode int    `json:"activity_code,omitempty"`
	Address      string `json:"address,omitempty"`
	Commune      string `json:"commune,omitempty"`
	City         string `json:"city,omitempty"`
}

// InvoiceItem línea ya valorizada.
type InvoiceItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	Exempt      bool            `json:"exempt,omitempty"`
}

// InvoiceSummary body para POST /api/dte. Los montos vienen calculados por el sistema de ventas;
// el motor de emisión no recalcula impuestos.
type InvoiceSummary struct {
	DocumentType int             `json:"document_type"`
	IssueDate    string          `json:"issue_date,omitempty"` // YYYY-MM-DD; vacío = hoy
	DueDate      string          `json:"due_date,omitempty"`
	Issuer       PartyRequest    `json:"issuer"`
	Receiver     PartyRequest    `json:"receiver"`
	Items        []InvoiceItem   `json:"items"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	ExemptAmount decimal.Decimal `json:"exempt_amount"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	Total        decimal.Decimal `json:"total"`
}

// IssueResult respuesta de emisión. Success=false siempre trae Code y Error.
type IssueResult struct {
	Success     bool   `json:"success"`
	Folio       int64  `json:"folio,omitempty"`
	TrackingID  string `json:"tracking_id,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
	XMLContent  string `json:"xml_content,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
}

// StatusResult respuesta de GET /api/dte/status/:trackId.
type StatusResult struct {
	TrackingID string `json:"tracking_id"`
	Status     string `json:"status"` // SUBMITTED, PROCESSING, ACCEPTED, REJECTED
	Token      string `json:"token"`  // ESTADO del SII (EPR, RCT, ...)
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// DocumentResponse DTE emitido (GET /api/dte/:type/:folio).
type DocumentResponse struct {
	DocumentType int             `json:"document_type"`
	Folio        int64           `json:"folio"`
	Status       string          `json:"status"`
	TrackingID   string          `json:"tracking_id,omitempty"`
	Total        decimal.Decimal `json:"total"`
	VoidReason   string          `json:"void_reason,omitempty"`
	XMLContent   string          `json:"xml_content,omitempty"`
	CreatedAt    string          `json:"created_at"`
}
