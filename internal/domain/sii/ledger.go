package sii

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Allocation folio asignado y la entrada del libro que lo autoriza (estado posterior a la asignación).
type Allocation struct {
	Folio int64
	Entry *entity.FolioLedgerEntry
}

// FolioLedger administra los rangos CAF por (emisor, tipo de DTE) y asigna folios.
//
// Asignar un folio es definitivo: si la emisión falla después, el folio queda consumido.
// Las asignaciones de una misma clave se serializan en una sección crítica; claves distintas
// avanzan en paralelo. El repositorio además bloquea la fila, de modo que varias instancias
// sobre la misma base de datos tampoco se pisan.
type FolioLedger struct {
	repo repository.FolioRepository
	log  zerolog.Logger
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFolioLedger construye el libro de folios sobre el repositorio dado.
func NewFolioLedger(repo repository.FolioRepository, log zerolog.Logger) *FolioLedger {
	return &FolioLedger{
		repo:  repo,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *FolioLedger) keyLock(issuerRUT string, dteType int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", issuerRUT, dteType)
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Register admite un rango nuevo con LastFolioUsed = FolioStart-1.
// Queda activo solo si no hay otro rango activo para el mismo emisor y tipo;
// pasar de un rango a otro es una decisión administrativa (Activate).
func (l *FolioLedger) Register(ctx context.Context, r entity.AuthorizationRange) (*entity.FolioLedgerEntry, error) {
	if r.IssuerRUT == "" || r.DocumentType <= 0 || r.FolioStart < 0 || r.FolioEnd < r.FolioStart {
		return nil, fmt.Errorf("sii: registrar CAF: %w", domain.ErrMalformedAuthorization)
	}
	if r.PrivateKey == "" {
		return nil, fmt.Errorf("sii: registrar CAF: %w", domain.ErrMissingSigningKey)
	}

	m := l.keyLock(r.IssuerRUT, r.DocumentType)
	m.Lock()
	defer m.Unlock()

	existing, err := l.repo.ListByKey(ctx, r.IssuerRUT, r.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("sii: registrar CAF: %w", err)
	}
	hasActive := false
	for _, e := range existing {
		if e.Range.Overlaps(r) {
			return nil, fmt.Errorf("sii: registrar CAF %d-%d (existe %d-%d): %w",
				r.FolioStart, r.FolioEnd, e.Range.FolioStart, e.Range.FolioEnd, domain.ErrOverlappingRange)
		}
		if e.IsActive {
			hasActive = true
		}
	}

	now := l.now().UTC()
	entry := &entity.FolioLedgerEntry{
		ID:            uuid.NewString(),
		Range:         r,
		LastFolioUsed: r.FolioStart - 1,
		IsActive:      !hasActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("sii: registrar CAF: %w", err)
	}
	l.log.Info().
		Str("issuer", r.IssuerRUT).
		Int("dte_type", r.DocumentType).
		Int64("folio_start", r.FolioStart).
		Int64("folio_end", r.FolioEnd).
		Bool("active", entry.IsActive).
		Msg("CAF registrado")
	return entry, nil
}

// Allocate asigna el siguiente folio del rango activo del emisor y tipo.
// ErrRangeExhausted si el rango activo ya no tiene folios (no hay traspaso automático al siguiente);
// ErrNoActiveRange si no hay rango activo.
func (l *FolioLedger) Allocate(ctx context.Context, issuerRUT string, dteType int) (*Allocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := l.keyLock(issuerRUT, dteType)
	m.Lock()
	defer m.Unlock()

	var folio int64
	entry, err := l.repo.AdvanceCursor(ctx, issuerRUT, dteType, func(e *entity.FolioLedgerEntry) (int64, error) {
		if e.Exhausted() {
			return 0, fmt.Errorf("%w: %d-%d", domain.ErrRangeExhausted, e.Range.FolioStart, e.Range.FolioEnd)
		}
		folio = e.LastFolioUsed + 1
		return folio, nil
	})
	if err != nil {
		return nil, fmt.Errorf("sii: asignar folio %s tipo %d: %w", issuerRUT, dteType, err)
	}
	l.log.Debug().
		Str("issuer", issuerRUT).
		Int("dte_type", dteType).
		Int64("folio", folio).
		Int64("remaining", entry.Remaining()).
		Msg("folio asignado")
	return &Allocation{Folio: folio, Entry: entry}, nil
}

// Get devuelve la entrada id del emisor; ErrNotFound si no existe o pertenece a otro emisor.
func (l *FolioLedger) Get(ctx context.Context, issuerRUT, id string) (*entity.FolioLedgerEntry, error) {
	e, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sii: obtener CAF: %w", err)
	}
	if e == nil || e.Range.IssuerRUT != issuerRUT {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

// List lista los rangos registrados del emisor.
func (l *FolioLedger) List(ctx context.Context, issuerRUT string) ([]*entity.FolioLedgerEntry, error) {
	list, err := l.repo.ListByIssuer(ctx, issuerRUT)
	if err != nil {
		return nil, fmt.Errorf("sii: listar CAF: %w", err)
	}
	return list, nil
}

// Activate deja la entrada id como la activa de su emisor y tipo (desactiva la anterior).
// Un rango agotado no se puede activar; lo decide el repositorio sobre la fila bloqueada.
func (l *FolioLedger) Activate(ctx context.Context, issuerRUT, id string) (*entity.FolioLedgerEntry, error) {
	e, err := l.Get(ctx, issuerRUT, id)
	if err != nil {
		return nil, err
	}
	m := l.keyLock(e.Range.IssuerRUT, e.Range.DocumentType)
	m.Lock()
	defer m.Unlock()

	out, err := l.repo.Activate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sii: activar CAF %s: %w", id, err)
	}
	l.log.Info().Str("issuer", issuerRUT).Str("caf_id", id).Msg("CAF activado")
	return out, nil
}

// Deactivate retira la entrada id de las asignaciones nuevas. El cursor no cambia.
func (l *FolioLedger) Deactivate(ctx context.Context, issuerRUT, id string) (*entity.FolioLedgerEntry, error) {
	e, err := l.Get(ctx, issuerRUT, id)
	if err != nil {
		return nil, err
	}
	m := l.keyLock(e.Range.IssuerRUT, e.Range.DocumentType)
	m.Lock()
	defer m.Unlock()

	out, err := l.repo.Deactivate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sii: desactivar CAF %s: %w", id, err)
	}
	l.log.Info().Str("issuer", issuerRUT).Str("caf_id", id).Msg("CAF desactivado")
	return out, nil
}
