package repository

import (
	"context"

	"github.com/jhoicas/dte-api/internal/domain/entity"
)

// IssuanceRepository define el puerto de persistencia de los DTE emitidos.
type IssuanceRepository interface {
	Create(ctx context.Context, rec *entity.IssuanceRecord) error
	Update(ctx context.Context, rec *entity.IssuanceRecord) error
	// TransitionStatus cambia el estado de id de from a to solo si sigue en from.
	// Devuelve false (sin error) si otro proceso ya lo cambió; ErrNotFound si no existe.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	GetByID(ctx context.Context, id string) (*entity.IssuanceRecord, error)
	// GetByTrackID y GetByFolio devuelven nil, nil si no existe.
	GetByTrackID(ctx context.Context, trackID string) (*entity.IssuanceRecord, error)
	GetByFolio(ctx context.Context, issuerRUT string, dteType int, folio int64) (*entity.IssuanceRecord, error)
}
