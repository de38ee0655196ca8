package repository

import (
	"context"

	"github.com/jhoicas/dte-api/internal/domain/entity"
)

// FolioRepository define el puerto de persistencia del libro de folios.
type FolioRepository interface {
	Create(ctx context.Context, e *entity.FolioLedgerEntry) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id string) (*entity.FolioLedgerEntry, error)
	ListByIssuer(ctx context.Context, issuerRUT string) ([]*entity.FolioLedgerEntry, error)

	// ListByKey lista los rangos de un emisor y tipo, ordenados por FolioStart.
	ListByKey(ctx context.Context, issuerRUT string, dteType int) ([]*entity.FolioLedgerEntry, error)

	// Activate deja activa la entrada id y desactiva cualquier otra del mismo emisor y tipo.
	// Devuelve ErrRangeExhausted, sin cambiar nada, si la entrada ya no tiene folios.
	Activate(ctx context.Context, id string) (*entity.FolioLedgerEntry, error)
	Deactivate(ctx context.Context, id string) (*entity.FolioLedgerEntry, error)

	// AdvanceCursor bloquea la entrada activa del emisor y tipo, invoca next con ella y
	// persiste el folio devuelto como LastFolioUsed. Si next falla no se persiste nada.
	// Devuelve ErrNoActiveRange si no hay entrada activa.
	AdvanceCursor(ctx context.Context, issuerRUT string, dteType int,
		next func(e *entity.FolioLedgerEntry) (int64, error)) (*entity.FolioLedgerEntry, error)
}
