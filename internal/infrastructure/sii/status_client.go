package sii

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// StatusQuerier consulta el estado de un envío por TrackID.
type StatusQuerier interface {
	Query(ctx context.Context, issuerRUT, trackID, sessionToken, env string) (*entity.SubmissionOutcome, error)
}

// ── Implementación HTTP ────────────────────────────────────────────────────────

// StatusClient implementa StatusQuerier contra el servicio de estado del SII.
// Una sola consulta por llamada: reintentos y frecuencia de sondeo quedan en manos de quien llama.
type StatusClient struct {
	httpClient *http.Client
	endpoints  map[string]Endpoints
	timeout    time.Duration
}

// NewStatusClient construye el cliente. timeout acota cada consulta (0 = solo el contexto del llamador).
func NewStatusClient(timeout time.Duration) *StatusClient {
	return &StatusClient{
		httpClient: &http.Client{},
		endpoints:  DefaultEndpoints,
		timeout:    timeout,
	}
}

// WithEndpoints reemplaza las URLs por ambiente (tests, proxies).
func (c *StatusClient) WithEndpoints(eps map[string]Endpoints) *StatusClient {
	c.endpoints = eps
	return c
}

// WithHTTPClient reemplaza el cliente HTTP.
func (c *StatusClient) WithHTTPClient(hc *http.Client) *StatusClient {
	c.httpClient = hc
	return c
}

// Query consulta el estado del envío trackID del emisor issuerRUT.
// Fallas de red, timeout o HTTP != 200 son ErrTransport (reintentables);
// una respuesta sin CODIGO es ErrUnparseableResponse.
func (c *StatusClient) Query(ctx context.Context, issuerRUT, trackID, sessionToken, env string) (*entity.SubmissionOutcome, error) {
	eps, ok := c.endpoints[env]
	if !ok {
		return nil, fmt.Errorf("sii: ambiente desconocido %q (usar cert o prod): %w", env, domain.ErrInvalidInput)
	}
	body, dv, err := sii.SplitRUT(issuerRUT)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(trackID) == "" {
		return nil, fmt.Errorf("sii: trackID vacío: %w", domain.ErrInvalidInput)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("rutCompania", body)
	q.Set("dvCompania", dv)
	q.Set("trackId", trackID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eps.Status+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sii: crear request de estado: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "TOKEN", Value: sessionToken})
	}

	raw, err := doRequest(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	out, err := ParseStatusResponse(raw)
	if err != nil {
		return nil, err
	}
	out.TrackID = trackID
	return out, nil
}

// doRequest ejecuta el request y devuelve el cuerpo; toda falla es ErrTransport.
func doRequest(ctx context.Context, hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timeout o cancelación: %v", domain.ErrTransport, ctx.Err())
		}
		return nil, fmt.Errorf("%w: llamada HTTP fallida: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("%w: leer respuesta: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrTransport, resp.StatusCode)
	}
	return raw, nil
}

// ParseStatusResponse extrae CODIGO, ESTADO y GLOSA (con o sin prefijo SII:).
// CODIGO es obligatorio; ESTADO y GLOSA pueden faltar.
func ParseStatusResponse(raw []byte) (*entity.SubmissionOutcome, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, err
	}
	code, ok := findText(root, "CODIGO")
	if !ok {
		return nil, fmt.Errorf("%w: respuesta sin CODIGO", domain.ErrUnparseableResponse)
	}
	status, _ := findText(root, "ESTADO")
	msg, _ := findText(root, "GLOSA")
	return &entity.SubmissionOutcome{Code: code, Status: status, Message: msg}, nil
}

func parseRoot(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("%w: XML inválido: %v", domain.ErrUnparseableResponse, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: respuesta vacía", domain.ErrUnparseableResponse)
	}
	return root, nil
}

// findText busca en profundidad la primera etiqueta con nombre local tag.
func findText(el *etree.Element, tag string) (string, bool) {
	if el.Tag == tag {
		return strings.TrimSpace(el.Text()), true
	}
	for _, child := range el.ChildElements() {
		if v, ok := findText(child, tag); ok {
			return v, true
		}
	}
	return "", false
}

var _ StatusQuerier = (*StatusClient)(nil)
