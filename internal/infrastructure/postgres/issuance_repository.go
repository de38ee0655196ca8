package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
)

var _ repository.IssuanceRepository = (*IssuanceRepo)(nil)

// IssuanceRepo implementa IssuanceRepository sobre PostgreSQL (tabla dte_issuances).
type IssuanceRepo struct {
	q Querier
}

// NewIssuanceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewIssuanceRepository(q Querier) *IssuanceRepo {
	return &IssuanceRepo{q: q}
}

const issuanceColumns = `
	id, issuer_rut, dte_type, folio, total, status, COALESCE(track_id, ''),
	document_xml, envelope_xml, void_reason, last_status_code, last_status_message,
	created_at, updated_at`

func (r *IssuanceRepo) Create(ctx context.Context, rec *entity.IssuanceRecord) error {
	const q = `
		INSERT INTO dte_issuances
			(id, issuer_rut, dte_type, folio, total, status, track_id,
			 document_xml, envelope_xml, void_reason, last_status_code, last_status_message,
			 created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, now(), now())`
	_, err := r.q.Exec(ctx, q,
		rec.ID, rec.IssuerRUT, rec.DocumentType, rec.Folio, rec.Total, rec.Status, rec.TrackID,
		rec.DocumentXML, rec.EnvelopeXML, rec.VoidReason, rec.LastStatusCode, rec.LastStatusMessage,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert dte_issuance folio %d: %w", rec.Folio, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert dte_issuance: %w", err)
	}
	return nil
}

func (r *IssuanceRepo) Update(ctx context.Context, rec *entity.IssuanceRecord) error {
	const q = `
		UPDATE dte_issuances
		SET status = $2, track_id = NULLIF($3, ''), document_xml = $4, envelope_xml = $5,
		    void_reason = $6, last_status_code = $7, last_status_message = $8, updated_at = now()
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q,
		rec.ID, rec.Status, rec.TrackID, rec.DocumentXML, rec.EnvelopeXML,
		rec.VoidReason, rec.LastStatusCode, rec.LastStatusMessage,
	)
	if err != nil {
		return fmt.Errorf("update dte_issuance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionStatus es un compare-and-set sobre status: el UPDATE condicionado serializa
// a los que compiten por la misma fila.
func (r *IssuanceRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	if !isUUID(id) {
		return false, domain.ErrNotFound
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE dte_issuances SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition dte_issuance: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dte_issuances WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("transition dte_issuance: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *IssuanceRepo) GetByID(ctx context.Context, id string) (*entity.IssuanceRecord, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.getOne(ctx, `SELECT `+issuanceColumns+` FROM dte_issuances WHERE id = $1`, id)
}

func (r *IssuanceRepo) GetByTrackID(ctx context.Context, trackID string) (*entity.IssuanceRecord, error) {
	return r.getOne(ctx, `SELECT `+issuanceColumns+` FROM dte_issuances WHERE track_id = $1`, trackID)
}

func (r *IssuanceRepo) GetByFolio(ctx context.Context, issuerRUT string, dteType int, folio int64) (*entity.IssuanceRecord, error) {
	return r.getOne(ctx, `SELECT `+issuanceColumns+` FROM dte_issuances
		WHERE issuer_rut = $1 AND dte_type = $2 AND folio = $3`, issuerRUT, dteType, folio)
}

func (r *IssuanceRepo) getOne(ctx context.Context, q string, args ...any) (*entity.IssuanceRecord, error) {
	rec, err := scanIssuance(r.q.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get dte_issuance: %w", err)
	}
	return rec, nil
}

func scanIssuance(row pgxScanner) (*entity.IssuanceRecord, error) {
	var rec entity.IssuanceRecord
	err := row.Scan(
		&rec.ID, &rec.IssuerRUT, &rec.DocumentType, &rec.Folio, &rec.Total, &rec.Status, &rec.TrackID,
		&rec.DocumentXML, &rec.EnvelopeXML, &rec.VoidReason, &rec.LastStatusCode, &rec.LastStatusMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
