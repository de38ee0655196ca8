package dte

import (
	"fmt"
	"net/http"
	"time"

	domsii "github.com/jhoicas/dte-api/internal/domain/sii"
	"github.com/jhoicas/dte-api/internal/domain/repository"
	infrasii "github.com/jhoicas/dte-api/internal/infrastructure/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-api/pkg/config"
	"github.com/rs/zerolog"
)

// Deps dependencias compartidas por el proveedor real.
type Deps struct {
	Ledger    *domsii.FolioLedger
	Issuances repository.IssuanceRepository
}

// NewProvider elige la implementación según SII_PROVIDER: "simulated" o "live".
func NewProvider(cfg config.SIIConfig, deps Deps, log zerolog.Logger) (Provider, error) {
	if cfg.Provider == "simulated" {
		// Sin certificado, folios ni red: para pruebas de integración de quien consume la API
		return NewSimulatedProvider(cfg.SimulatedFolio, log), nil
	} else if cfg.Provider == "live" {
		if deps.Ledger == nil || deps.Issuances == nil {
			return nil, fmt.Errorf("dte: proveedor live requiere libro de folios y registro de emisiones")
		}
		cert, err := signer.LoadCertificate(cfg.CertPath, cfg.CertKeyPath, cfg.CertPassword)
		if err != nil {
			return nil, fmt.Errorf("dte: certificado: %w", err)
		}
		if signer.IsEmpty(cert) {
			log.Warn().Msg("SII_CERT_PATH vacío: DTE y EnvioDTE se enviarán sin firma XMLDSig")
		}
		// Sin FchResol la carátula no se puede armar y cada emisión anularía un folio.
		resolution, err := time.Parse("2006-01-02", cfg.ResolutionDate)
		if err != nil {
			return nil, fmt.Errorf("dte: SII_RESOLUTION_DATE %q debe ser AAAA-MM-DD", cfg.ResolutionDate)
		}
		timeout := cfg.StatusTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		live := LiveConfig{
			Environment:      cfg.Environment,
			SenderRUT:        cfg.SenderRUT,
			ResolutionDate:   resolution,
			ResolutionNumber: cfg.ResolutionNumber,
			SessionToken:     cfg.SessionToken,
			Certificate:      cert,
		}
		uploader := infrasii.NewUploadClient(&http.Client{Timeout: 2 * timeout})
		status := infrasii.NewStatusClient(timeout)
		return NewLiveProvider(deps.Ledger, deps.Issuances, signer.NewDigitalSignatureService(), uploader, status, live, log), nil
	}
	return nil, fmt.Errorf("dte: proveedor desconocido %q (usar simulated|live)", cfg.Provider)
}
