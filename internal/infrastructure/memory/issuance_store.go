package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
)

var _ repository.IssuanceRepository = (*IssuanceStore)(nil)

// IssuanceStore registro de emisiones en memoria.
type IssuanceStore struct {
	mu      sync.RWMutex
	records map[string]*entity.IssuanceRecord
}

// NewIssuanceStore crea un almacén vacío.
func NewIssuanceStore() *IssuanceStore {
	return &IssuanceStore{records: make(map[string]*entity.IssuanceRecord)}
}

func (s *IssuanceStore) Create(_ context.Context, rec *entity.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("emisión %s: %w", rec.ID, domain.ErrDuplicate)
	}
	for _, r := range s.records {
		if r.IssuerRUT == rec.IssuerRUT && r.DocumentType == rec.DocumentType && r.Folio == rec.Folio {
			return fmt.Errorf("folio %d tipo %d ya registrado: %w", rec.Folio, rec.DocumentType, domain.ErrDuplicate)
		}
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.records[rec.ID] = &cp
	return nil
}

func (s *IssuanceStore) Update(_ context.Context, rec *entity.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[rec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *rec
	cp.CreatedAt = old.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.records[rec.ID] = &cp
	return nil
}

func (s *IssuanceStore) TransitionStatus(_ context.Context, id, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	cp := *r
	cp.Status = to
	cp.UpdatedAt = time.Now().UTC()
	s.records[id] = &cp
	return true, nil
}

func (s *IssuanceStore) GetByID(_ context.Context, id string) (*entity.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *IssuanceStore) GetByTrackID(_ context.Context, trackID string) (*entity.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.TrackID != "" && r.TrackID == trackID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *IssuanceStore) GetByFolio(_ context.Context, issuerRUT string, dteType int, folio int64) (*entity.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.IssuerRUT == issuerRUT && r.DocumentType == dteType && r.Folio == folio {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}
