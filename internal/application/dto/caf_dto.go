package dto

// CAFResponse rango de folios registrado (sin llave privada).
type CAFResponse struct {
	ID            string `json:"id"`
	IssuerRUT     string `json:"issuer_rut"`
	DocumentType  int    `json:"document_type"`
	FolioStart    int64  `json:"folio_start"`
	FolioEnd      int64  `json:"folio_end"`
	LastFolioUsed int64  `json:"last_folio_used"`
	Remaining     int64  `json:"remaining"`
	IsActive      bool   `json:"is_active"`
	AuthorizedAt  string `json:"authorized_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}
