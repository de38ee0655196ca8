package entity

import "time"

// FolioLedgerEntry es el cursor persistido de un CAF registrado.
// LastFolioUsed = FolioStart-1 al registrar; nunca retrocede. Solo una entrada activa
// por (IssuerRUT, DocumentType).
type FolioLedgerEntry struct {
	ID            string
	Range         AuthorizationRange
	LastFolioUsed int64
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Exhausted indica si ya se usaron todos los folios del rango.
func (e *FolioLedgerEntry) Exhausted() bool {
	return e.LastFolioUsed >= e.Range.FolioEnd
}

// Remaining folios disponibles en el rango.
func (e *FolioLedgerEntry) Remaining() int64 {
	if e.Exhausted() {
		return 0
	}
	return e.Range.FolioEnd - e.LastFolioUsed
}
