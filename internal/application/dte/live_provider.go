package dte

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/internal/domain/repository"
	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	infrasii "github.com/jhoicas/dte-api/internal/infrastructure/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/ted"
	"github.com/jhoicas/dte-api/pkg/sii"
	"github.com/rs/zerolog"
)

// LiveConfig datos del contribuyente para armar y entregar envíos.
type LiveConfig struct {
	Environment      string // cert | prod
	SenderRUT        string
	ResolutionDate   time.Time
	ResolutionNumber int
	SessionToken     string
	Certificate      tls.Certificate // vacío = DTE y sobre sin XMLDSig
}

// LiveProvider emite contra el SII:
//
//	folio → TED (SHA1withRSA) → DTE → XMLDSig → EnvioDTE → XMLDSig → Latin-1 → DTEUpload
//
// Todo folio asignado queda registrado. Si el armado falla el registro queda VOIDED con el motivo
// (el folio no se reutiliza). Si falla la entrega queda BUILT y Resubmit reenvía los mismos bytes.
// Mientras un envío está en curso el registro queda SUBMITTING y no admite otro envío.
type LiveProvider struct {
	ledger    *domsii.FolioLedger
	issuances repository.IssuanceRepository
	stamps    *ted.StampSigner
	documents *infrasii.XMLBuilderService
	envelopes *infrasii.EnvelopeBuilderService
	sealer    sii.Sealer
	uploader  infrasii.Uploader
	status    infrasii.StatusQuerier
	cfg       LiveConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewLiveProvider construye el proveedor real.
func NewLiveProvider(
	ledger *domsii.FolioLedger,
	issuances repository.IssuanceRepository,
	sealer sii.Sealer,
	uploader infrasii.Uploader,
	status infrasii.StatusQuerier,
	cfg LiveConfig,
	log zerolog.Logger,
) *LiveProvider {
	return &LiveProvider{
		ledger:    ledger,
		issuances: issuances,
		stamps:    ted.NewStampSigner(),
		documents: infrasii.NewXMLBuilderService(),
		envelopes: infrasii.NewEnvelopeBuilderService(),
		sealer:    sealer,
		uploader:  uploader,
		status:    status,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// WithClock fija el reloj (tests).
func (p *LiveProvider) WithClock(now func() time.Time) *LiveProvider {
	p.now = now
	return p
}

func (p *LiveProvider) sealing() bool {
	return !signer.IsEmpty(p.cfg.Certificate)
}

// Issue implementa Provider.
func (p *LiveProvider) Issue(ctx context.Context, in dto.InvoiceSummary) (*dto.IssueResult, error) {
	if err := validateSummary(in); err != nil {
		ie := issueError(in, 0, "validate", err)
		return failed(ie), ie
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 1. Asignar folio (compromiso: desde aquí el folio queda consumido)
	// ═══════════════════════════════════════════════════════════════════════════
	alloc, err := p.ledger.Allocate(ctx, in.Issuer.RUT, in.DocumentType)
	if err != nil {
		ie := issueError(in, 0, "allocate", err)
		p.log.Error().Err(err).Str("issuer", in.Issuer.RUT).Int("dte_type", in.DocumentType).Msg("sin folio")
		return failed(ie), ie
	}
	folio := alloc.Folio
	now := p.now()

	rec := &entity.IssuanceRecord{
		ID:           uuid.NewString(),
		IssuerRUT:    in.Issuer.RUT,
		DocumentType: in.DocumentType,
		Folio:        folio,
		Total:        in.Total,
	}

	docXML, envXML, step, err := p.assemble(ctx, in, alloc, now)
	if err != nil {
		// Usar un contexto propio: el folio debe quedar anulado aunque el request se haya cancelado.
		p.void(context.WithoutCancel(ctx), rec, step, err)
		ie := issueError(in, folio, step, err)
		return failed(ie), ie
	}
	rec.Status = entity.IssuanceBuilt
	rec.DocumentXML = docXML
	rec.EnvelopeXML = envXML
	if err := p.issuances.Create(ctx, rec); err != nil {
		p.log.Error().Err(err).Int64("folio", folio).Msg("no se pudo registrar el DTE armado")
		rec.DocumentXML, rec.EnvelopeXML = "", ""
		p.void(context.WithoutCancel(ctx), rec, "record", err)
		ie := issueError(in, folio, "record", err)
		return failed(ie), ie
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// 2. Entregar al SII
	// ═══════════════════════════════════════════════════════════════════════════
	res, err := p.submit(ctx, rec)
	if err != nil {
		ie := issueError(in, folio, "upload", err)
		out := failed(ie)
		out.XMLContent = docXML
		return out, ie
	}
	res.XMLContent = docXML
	return res, nil
}

// assemble timbra, arma y firma el DTE y el sobre. step identifica la etapa que falló.
func (p *LiveProvider) assemble(ctx context.Context, in dto.InvoiceSummary, alloc *domsii.Allocation, now time.Time) (docXML, envXML, step string, err error) {
	r := alloc.Entry.Range
	date := issueDate(in, now)
	firstItem := in.Items[0].Name

	stamp, err := p.stamps.Sign(ctx, ted.StampInput{
		IssuerRUT:    in.Issuer.RUT,
		DocumentType: in.DocumentType,
		Folio:        alloc.Folio,
		IssueDate:    date,
		ReceiverRUT:  in.Receiver.RUT,
		ReceiverName: in.Receiver.Name,
		FirstItem:    firstItem,
		Total:        in.Total,
		CAF:          r.Fragment,
	}, r.PrivateKey, now)
	if err != nil {
		return "", "", "stamp", err
	}

	docXML, err = p.documents.Build(toDocumentInput(in, alloc.Folio, date, stamp, now))
	if err != nil {
		return "", "", "build", err
	}
	if p.sealing() {
		if docXML, err = p.sealer.Seal(docXML, infrasii.DocumentID(in.DocumentType, alloc.Folio), p.cfg.Certificate); err != nil {
			return "", "", "seal-document", err
		}
	}

	env, err := p.envelopes.Build(&infrasii.EnvelopeInput{
		IssuerRUT:        in.Issuer.RUT,
		SenderRUT:        p.cfg.SenderRUT,
		ResolutionDate:   p.cfg.ResolutionDate,
		ResolutionNumber: p.cfg.ResolutionNumber,
		Timestamp:        now,
		Documents:        []infrasii.SignedDocument{{DocumentType: in.DocumentType, XML: docXML}},
	})
	if err != nil {
		return "", "", "envelope", err
	}
	envXML = env.XML()
	if p.sealing() {
		if envXML, err = p.sealer.Seal(envXML, infrasii.SetID, p.cfg.Certificate); err != nil {
			return "", "", "seal-envelope", err
		}
	}
	if _, err := sii.ToLatin1(envXML); err != nil {
		return "", "", "encode", fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return docXML, envXML, "", nil
}

// void deja constancia del folio consumido sin documento válido.
func (p *LiveProvider) void(ctx context.Context, rec *entity.IssuanceRecord, step string, cause error) {
	rec.Status = entity.IssuanceVoided
	rec.VoidReason = fmt.Sprintf("%s: %v", step, cause)
	if err := p.issuances.Create(ctx, rec); err != nil {
		p.log.Error().Err(err).
			Str("issuer", rec.IssuerRUT).
			Int("dte_type", rec.DocumentType).
			Int64("folio", rec.Folio).
			Str("step", step).
			Msg("folio consumido sin registro: no se pudo registrar folio anulado")
		return
	}
	p.log.Warn().
		Str("issuer", rec.IssuerRUT).
		Int("dte_type", rec.DocumentType).
		Int64("folio", rec.Folio).
		Str("step", step).
		Err(cause).
		Msg("folio anulado")
}

// submit entrega el sobre guardado en rec y lo deja SUBMITTED.
// Antes de transmitir reserva el registro (BUILT -> SUBMITTING): un solo llamador envía cada sobre.
// Transporte: vuelve a BUILT (reintentable). STATUS != 0: queda REJECTED.
func (p *LiveProvider) submit(ctx context.Context, rec *entity.IssuanceRecord) (*dto.IssueResult, error) {
	payload, err := sii.ToLatin1(rec.EnvelopeXML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	claimed, err := p.issuances.TransitionStatus(ctx, rec.ID, entity.IssuanceBuilt, entity.IssuanceSubmitting)
	if err != nil {
		return nil, fmt.Errorf("reservar envío folio %d: %w", rec.Folio, err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: folio %d ya está en envío o fue enviado", domain.ErrInvalidTransition, rec.Folio)
	}
	rec.Status = entity.IssuanceSubmitting

	up, err := p.uploader.Upload(ctx, infrasii.UploadRequest{
		SenderRUT:    p.cfg.SenderRUT,
		IssuerRUT:    rec.IssuerRUT,
		Envelope:     payload,
		FileName:     fmt.Sprintf("EnvioDTE_%d_%d.xml", rec.DocumentType, rec.Folio),
		SessionToken: p.cfg.SessionToken,
		Env:          p.cfg.Environment,
	})
	if err != nil {
		logEvt := p.log.Error().Err(err).Int64("folio", rec.Folio).Bool("retryable", domain.IsRetryable(err))
		if errors.Is(err, domain.ErrUploadRejected) {
			rec.Status = entity.IssuanceRejected
			if up != nil {
				rec.LastStatusCode = up.Status
			}
			rec.LastStatusMessage = err.Error()
			if uErr := p.issuances.Update(context.WithoutCancel(ctx), rec); uErr != nil {
				p.log.Error().Err(uErr).Int64("folio", rec.Folio).Msg("no se pudo registrar rechazo del envío")
			}
		} else {
			rec.Status = entity.IssuanceBuilt
			if _, rErr := p.issuances.TransitionStatus(context.WithoutCancel(ctx), rec.ID,
				entity.IssuanceSubmitting, entity.IssuanceBuilt); rErr != nil {
				p.log.Error().Err(rErr).Int64("folio", rec.Folio).Msg("no se pudo liberar el envío para reintento")
			}
		}
		logEvt.Msg("envío al SII fallido")
		return nil, err
	}

	rec.Status = entity.IssuanceSubmitted
	rec.TrackID = up.TrackID
	if err := p.issuances.Update(ctx, rec); err != nil {
		// El SII ya tiene el envío: sin el TrackID guardado, el estado solo se puede consultar con este valor.
		p.log.Error().Err(err).Int64("folio", rec.Folio).Str("track_id", up.TrackID).Msg("envío aceptado pero no registrado")
		return nil, fmt.Errorf("registrar TrackID %s: %w", up.TrackID, err)
	}
	p.log.Info().
		Str("issuer", rec.IssuerRUT).
		Int("dte_type", rec.DocumentType).
		Int64("folio", rec.Folio).
		Str("track_id", up.TrackID).
		Msg("DTE enviado")
	return &dto.IssueResult{
		Success:     true,
		Folio:       rec.Folio,
		TrackingID:  up.TrackID,
		DocumentURL: documentURL(rec.DocumentType, rec.Folio),
	}, nil
}

// Resubmit implementa Provider.
func (p *LiveProvider) Resubmit(ctx context.Context, issuerRUT string, dteType int, folio int64) (*dto.IssueResult, error) {
	summary := dto.InvoiceSummary{DocumentType: dteType, Issuer: dto.PartyRequest{RUT: issuerRUT}}
	rec, err := p.issuances.GetByFolio(ctx, issuerRUT, dteType, folio)
	if err != nil {
		ie := issueError(summary, folio, "lookup", err)
		return failed(ie), ie
	}
	if rec == nil {
		ie := issueError(summary, folio, "lookup", domain.ErrNotFound)
		return failed(ie), ie
	}
	if rec.Status != entity.IssuanceBuilt {
		ie := issueError(summary, folio, "resubmit",
			fmt.Errorf("%w: documento en estado %s", domain.ErrInvalidTransition, rec.Status))
		return failed(ie), ie
	}
	res, err := p.submit(ctx, rec)
	if err != nil {
		ie := issueError(summary, folio, "upload", err)
		return failed(ie), ie
	}
	res.XMLContent = rec.DocumentXML
	return res, nil
}

// CheckStatus implementa Provider.
func (p *LiveProvider) CheckStatus(ctx context.Context, issuerRUT, trackID string) (*dto.StatusResult, error) {
	rec, err := p.issuances.GetByTrackID(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("buscar envío %s: %w", trackID, err)
	}
	if rec == nil || rec.IssuerRUT != issuerRUT {
		return nil, fmt.Errorf("envío %s: %w", trackID, domain.ErrNotFound)
	}

	outcome, err := p.status.Query(ctx, issuerRUT, trackID, p.cfg.SessionToken, p.cfg.Environment)
	if err != nil {
		p.log.Warn().Err(err).Str("track_id", trackID).Bool("retryable", domain.IsRetryable(err)).Msg("consulta de estado fallida")
		return nil, err
	}
	next, err := domsii.Advance(rec.Status, *outcome)
	if err != nil {
		if errors.Is(err, domain.ErrUnparseableResponse) {
			p.log.Error().Err(err).Str("track_id", trackID).Str("estado", outcome.Status).Msg("ESTADO desconocido del SII")
		}
		return nil, err
	}

	rec.Status = next
	rec.LastStatusCode = outcome.Code
	rec.LastStatusMessage = outcome.Message
	if err := p.issuances.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("actualizar estado de %s: %w", trackID, err)
	}
	return &dto.StatusResult{
		TrackingID: trackID,
		Status:     next,
		Token:      outcome.Status,
		Code:       outcome.Code,
		Message:    outcome.Message,
	}, nil
}

// Document implementa Provider.
func (p *LiveProvider) Document(ctx context.Context, issuerRUT string, dteType int, folio int64) (*dto.DocumentResponse, error) {
	rec, err := p.issuances.GetByFolio(ctx, issuerRUT, dteType, folio)
	if err != nil {
		return nil, fmt.Errorf("buscar DTE %d/%d: %w", dteType, folio, err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	return toDocumentResponse(rec), nil
}
