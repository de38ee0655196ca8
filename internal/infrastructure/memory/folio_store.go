// Package memory implementa los repositorios en memoria (desarrollo, pruebas y SII_STORE=memory).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
)

var _ repository.FolioRepository = (*FolioStore)(nil)

// FolioStore libro de folios en memoria, seguro para uso concurrente.
// Devuelve copias: quien llama nunca comparte punteros con el almacén.
type FolioStore struct {
	mu      sync.RWMutex
	entries map[string]*entity.FolioLedgerEntry
}

// NewFolioStore crea un almacén vacío.
func NewFolioStore() *FolioStore {
	return &FolioStore{entries: make(map[string]*entity.FolioLedgerEntry)}
}

func (s *FolioStore) Create(_ context.Context, e *entity.FolioLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("CAF %s: %w", e.ID, domain.ErrDuplicate)
	}
	for _, other := range s.entries {
		if other.Range.IssuerRUT == e.Range.IssuerRUT && other.Range.DocumentType == e.Range.DocumentType &&
			other.Range.FolioStart == e.Range.FolioStart {
			return fmt.Errorf("CAF %s/%d desde %d: %w", e.Range.IssuerRUT, e.Range.DocumentType, e.Range.FolioStart, domain.ErrDuplicate)
		}
		if e.IsActive && other.IsActive && sameKey(other, e) {
			return fmt.Errorf("ya hay un CAF activo para %s/%d: %w", e.Range.IssuerRUT, e.Range.DocumentType, domain.ErrConflict)
		}
	}
	cp := *e
	s.entries[e.ID] = &cp
	return nil
}

func (s *FolioStore) GetByID(_ context.Context, id string) (*entity.FolioLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *FolioStore) ListByIssuer(_ context.Context, issuerRUT string) ([]*entity.FolioLedgerEntry, error) {
	return s.list(func(e *entity.FolioLedgerEntry) bool { return e.Range.IssuerRUT == issuerRUT }), nil
}

func (s *FolioStore) ListByKey(_ context.Context, issuerRUT string, dteType int) ([]*entity.FolioLedgerEntry, error) {
	return s.list(func(e *entity.FolioLedgerEntry) bool {
		return e.Range.IssuerRUT == issuerRUT && e.Range.DocumentType == dteType
	}), nil
}

func (s *FolioStore) list(match func(*entity.FolioLedgerEntry) bool) []*entity.FolioLedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entity.FolioLedgerEntry
	for _, e := range s.entries {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Range.DocumentType != out[j].Range.DocumentType {
			return out[i].Range.DocumentType < out[j].Range.DocumentType
		}
		return out[i].Range.FolioStart < out[j].Range.FolioStart
	})
	return out
}

func (s *FolioStore) Activate(_ context.Context, id string) (*entity.FolioLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if target.Exhausted() {
		return nil, domain.ErrRangeExhausted
	}
	now := time.Now().UTC()
	for _, e := range s.entries {
		if e.ID != id && e.IsActive && sameKey(e, target) {
			e.IsActive = false
			e.UpdatedAt = now
		}
	}
	target.IsActive = true
	target.UpdatedAt = now
	cp := *target
	return &cp, nil
}

func (s *FolioStore) Deactivate(_ context.Context, id string) (*entity.FolioLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.IsActive = false
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

// AdvanceCursor lee, calcula y escribe el cursor bajo el mismo lock de escritura.
func (s *FolioStore) AdvanceCursor(_ context.Context, issuerRUT string, dteType int,
	next func(e *entity.FolioLedgerEntry) (int64, error)) (*entity.FolioLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active *entity.FolioLedgerEntry
	for _, e := range s.entries {
		if e.IsActive && e.Range.IssuerRUT == issuerRUT && e.Range.DocumentType == dteType {
			active = e
			break
		}
	}
	if active == nil {
		return nil, domain.ErrNoActiveRange
	}
	snapshot := *active
	folio, err := next(&snapshot)
	if err != nil {
		return nil, err
	}
	if folio <= active.LastFolioUsed || folio > active.Range.FolioEnd {
		return nil, fmt.Errorf("cursor %d fuera de secuencia (último %d, fin %d): %w",
			folio, active.LastFolioUsed, active.Range.FolioEnd, domain.ErrConflict)
	}
	active.LastFolioUsed = folio
	active.UpdatedAt = time.Now().UTC()
	cp := *active
	return &cp, nil
}

func sameKey(a, b *entity.FolioLedgerEntry) bool {
	return a.Range.IssuerRUT == b.Range.IssuerRUT && a.Range.DocumentType == b.Range.DocumentType
}
