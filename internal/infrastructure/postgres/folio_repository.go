package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
)

var _ repository.FolioRepository = (*FolioRepo)(nil)

// FolioRepo implementa FolioRepository sobre PostgreSQL (tabla caf_ranges).
type FolioRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
}

// NewFolioRepository construye el repositorio.
func NewFolioRepository(pool *pgxpool.Pool) *FolioRepo {
	return &FolioRepo{pool: pool, tx: NewTxRunner(pool)}
}

const cafColumns = `
	id, issuer_rut, dte_type, folio_start, folio_end, authorized_at, key_id,
	public_modulus, public_exponent, private_key, caf_fragment,
	last_folio_used, is_active, created_at, updated_at`

func (r *FolioRepo) Create(ctx context.Context, e *entity.FolioLedgerEntry) error {
	const q = `
		INSERT INTO caf_ranges
			(id, issuer_rut, dte_type, folio_start, folio_end, authorized_at, key_id,
			 public_modulus, public_exponent, private_key, caf_fragment,
			 last_folio_used, is_active, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	var authorizedAt *time.Time
	if !e.Range.AuthorizedAt.IsZero() {
		authorizedAt = &e.Range.AuthorizedAt
	}
	_, err := r.pool.Exec(ctx, q,
		e.ID, e.Range.IssuerRUT, e.Range.DocumentType, e.Range.FolioStart, e.Range.FolioEnd,
		authorizedAt, e.Range.KeyID, e.Range.PublicKey.Modulus, e.Range.PublicKey.Exponent,
		e.Range.PrivateKey, e.Range.Fragment,
		e.LastFolioUsed, e.IsActive, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert caf_range: %w", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert caf_range: %w", err)
	}
	return nil
}

func (r *FolioRepo) GetByID(ctx context.Context, id string) (*entity.FolioLedgerEntry, error) {
	if !isUUID(id) {
		return nil, nil
	}
	e, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+cafColumns+` FROM caf_ranges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get caf_range by id: %w", err)
	}
	return e, nil
}

func (r *FolioRepo) ListByIssuer(ctx context.Context, issuerRUT string) ([]*entity.FolioLedgerEntry, error) {
	return r.list(ctx, `SELECT `+cafColumns+` FROM caf_ranges
		WHERE issuer_rut = $1 ORDER BY dte_type, folio_start`, issuerRUT)
}

func (r *FolioRepo) ListByKey(ctx context.Context, issuerRUT string, dteType int) ([]*entity.FolioLedgerEntry, error) {
	return r.list(ctx, `SELECT `+cafColumns+` FROM caf_ranges
		WHERE issuer_rut = $1 AND dte_type = $2 ORDER BY folio_start`, issuerRUT, dteType)
}

func (r *FolioRepo) list(ctx context.Context, q string, args ...any) ([]*entity.FolioLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list caf_ranges: %w", err)
	}
	defer rows.Close()
	var list []*entity.FolioLedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan caf_range: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Activate desactiva el rango activo del mismo emisor y tipo y activa id, en una sola transacción.
func (r *FolioRepo) Activate(ctx context.Context, id string) (*entity.FolioLedgerEntry, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	var out *entity.FolioLedgerEntry
	err := r.tx.Run(ctx, func(q Querier) error {
		e, err := scanEntry(q.QueryRow(ctx, `SELECT `+cafColumns+` FROM caf_ranges WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("lock caf_range: %w", err)
		}
		if e.Exhausted() {
			return domain.ErrRangeExhausted
		}
		if _, err := q.Exec(ctx, `
			UPDATE caf_ranges SET is_active = false, updated_at = now()
			WHERE issuer_rut = $1 AND dte_type = $2 AND is_active AND id <> $3`,
			e.Range.IssuerRUT, e.Range.DocumentType, id); err != nil {
			return fmt.Errorf("deactivate previous caf_range: %w", err)
		}
		out, err = scanEntry(q.QueryRow(ctx, `
			UPDATE caf_ranges SET is_active = true, updated_at = now()
			WHERE id = $1 RETURNING `+cafColumns, id))
		if err != nil {
			return fmt.Errorf("activate caf_range: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FolioRepo) Deactivate(ctx context.Context, id string) (*entity.FolioLedgerEntry, error) {
	if !isUUID(id) {
		return nil, domain.ErrNotFound
	}
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		UPDATE caf_ranges SET is_active = false, updated_at = now()
		WHERE id = $1 RETURNING `+cafColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("deactivate caf_range: %w", err)
	}
	return e, nil
}

// AdvanceCursor bloquea la fila activa (SELECT ... FOR UPDATE) durante lectura, cálculo y escritura
// del cursor. Otras instancias de la API esperan el commit antes de leer el mismo cursor.
func (r *FolioRepo) AdvanceCursor(ctx context.Context, issuerRUT string, dteType int,
	next func(e *entity.FolioLedgerEntry) (int64, error)) (*entity.FolioLedgerEntry, error) {
	var out *entity.FolioLedgerEntry
	err := r.tx.Run(ctx, func(q Querier) error {
		e, err := scanEntry(q.QueryRow(ctx, `SELECT `+cafColumns+` FROM caf_ranges
			WHERE issuer_rut = $1 AND dte_type = $2 AND is_active
			FOR UPDATE`, issuerRUT, dteType))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNoActiveRange
			}
			return fmt.Errorf("lock active caf_range: %w", err)
		}
		folio, err := next(e)
		if err != nil {
			return err
		}
		out, err = scanEntry(q.QueryRow(ctx, `
			UPDATE caf_ranges SET last_folio_used = $2, updated_at = now()
			WHERE id = $1 AND last_folio_used < $2
			RETURNING `+cafColumns, e.ID, folio))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("cursor %d fuera de secuencia: %w", folio, domain.ErrConflict)
			}
			return fmt.Errorf("advance caf_range cursor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func scanEntry(row pgxScanner) (*entity.FolioLedgerEntry, error) {
	var e entity.FolioLedgerEntry
	var authorizedAt *time.Time
	err := row.Scan(
		&e.ID, &e.Range.IssuerRUT, &e.Range.DocumentType, &e.Range.FolioStart, &e.Range.FolioEnd,
		&authorizedAt, &e.Range.KeyID, &e.Range.PublicKey.Modulus, &e.Range.PublicKey.Exponent,
		&e.Range.PrivateKey, &e.Range.Fragment,
		&e.LastFolioUsed, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if authorizedAt != nil {
		e.Range.AuthorizedAt = *authorizedAt
	}
	return &e, nil
}
