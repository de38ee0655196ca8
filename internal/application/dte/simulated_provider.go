package dte

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SimulatedProvider doble de pruebas: no firma, no usa folios reales y no contacta al SII.
// Siempre devuelve el folio configurado y los envíos quedan aceptados (EPR).
type SimulatedProvider struct {
	folio int64
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.Mutex
	seq     int64
	byTrack map[string]*entity.IssuanceRecord
}

// NewSimulatedProvider crea el proveedor simulado. folio <= 0 se toma como 1.
func NewSimulatedProvider(folio int64, log zerolog.Logger) *SimulatedProvider {
	if folio <= 0 {
		folio = 1
	}
	return &SimulatedProvider{
		folio:   folio,
		log:     log,
		now:     time.Now,
		byTrack: make(map[string]*entity.IssuanceRecord),
	}
}

// Issue implementa Provider.
func (p *SimulatedProvider) Issue(ctx context.Context, in dto.InvoiceSummary) (*dto.IssueResult, error) {
	if err := validateSummary(in); err != nil {
		ie := issueError(in, 0, "validate", err)
		return failed(ie), ie
	}
	if err := ctx.Err(); err != nil {
		ie := issueError(in, 0, "validate", err)
		return failed(ie), ie
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	trackID := fmt.Sprintf("SIM-%d", p.seq)
	now := p.now().UTC()
	xml := simulatedXML(in.DocumentType, p.folio, in.Total)
	p.byTrack[trackID] = &entity.IssuanceRecord{
		ID:           trackID,
		IssuerRUT:    in.Issuer.RUT,
		DocumentType: in.DocumentType,
		Folio:        p.folio,
		Total:        in.Total,
		Status:       entity.IssuanceSubmitted,
		TrackID:      trackID,
		DocumentXML:  xml,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.log.Debug().Str("track_id", trackID).Int("dte_type", in.DocumentType).Msg("emisión simulada")

	return &dto.IssueResult{
		Success:     true,
		Folio:       p.folio,
		TrackingID:  trackID,
		DocumentURL: documentURL(in.DocumentType, p.folio),
		XMLContent:  xml,
	}, nil
}

// CheckStatus implementa Provider. Todo envío conocido está aceptado.
func (p *SimulatedProvider) CheckStatus(_ context.Context, issuerRUT, trackID string) (*dto.StatusResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byTrack[trackID]
	if !ok || rec.IssuerRUT != issuerRUT {
		return nil, fmt.Errorf("envío %s: %w", trackID, domain.ErrNotFound)
	}
	rec.Status = entity.IssuanceAccepted
	rec.LastStatusCode = "0"
	rec.LastStatusMessage = "Envío simulado"
	return &dto.StatusResult{
		TrackingID: trackID,
		Status:     entity.IssuanceAccepted,
		Token:      sii.StatusProcessed,
		Code:       "0",
		Message:    "Envío simulado",
	}, nil
}

// Resubmit implementa Provider. Los envíos simulados nunca quedan pendientes.
func (p *SimulatedProvider) Resubmit(_ context.Context, issuerRUT string, dteType int, folio int64) (*dto.IssueResult, error) {
	ie := &domain.IssueError{
		Kind:         domain.ErrInvalidTransition,
		Issuer:       issuerRUT,
		DocumentType: dteType,
		Folio:        folio,
		Step:         "resubmit",
		Err:          fmt.Errorf("%w: el proveedor simulado no deja envíos pendientes", domain.ErrInvalidTransition),
	}
	return failed(ie), ie
}

// Document implementa Provider. Con folio fijo devuelve la última emisión de ese tipo.
func (p *SimulatedProvider) Document(_ context.Context, issuerRUT string, dteType int, folio int64) (*dto.DocumentResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var last *entity.IssuanceRecord
	for _, r := range p.byTrack {
		if r.IssuerRUT != issuerRUT || r.DocumentType != dteType || r.Folio != folio {
			continue
		}
		if last == nil || r.CreatedAt.After(last.CreatedAt) || (r.CreatedAt.Equal(last.CreatedAt) && r.TrackID > last.TrackID) {
			last = r
		}
	}
	if last == nil {
		return nil, domain.ErrNotFound
	}
	return toDocumentResponse(last), nil
}

func simulatedXML(dteType int, folio int64, total decimal.Decimal) string {
	return fmt.Sprintf(`<DTE version="1.0"><Documento ID="F%dT%d"><Encabezado><IdDoc><TipoDTE>%d</TipoDTE><Folio>%d</Folio></IdDoc><Totales><MntTotal>%s</MntTotal></Totales></Encabezado></Documento></DTE>`,
		folio, dteType, dteType, folio, total.Round(0).String())
}
