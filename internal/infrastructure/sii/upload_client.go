package sii

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/jhoicas/dte-api/internal/domain"
	"github.com/jhoicas/dte-api/pkg/sii"
)

// El servicio de recepción del SII filtra por User-Agent.
const uploadUserAgent = "Mozilla/4.0 (compatible; PROG 1.0; Windows NT 5.0; YComp 5.0.2.4)"

// UploadResult respuesta de la recepción de un EnvioDTE.
type UploadResult struct {
	TrackID   string
	Status    string // STATUS (0 = recibido)
	Timestamp string
}

// Uploader entrega un sobre EnvioDTE al SII.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// UploadRequest datos del envío.
type UploadRequest struct {
	SenderRUT    string
	IssuerRUT    string
	Envelope     []byte // EnvioDTE en ISO-8859-1
	FileName     string
	SessionToken string
	Env          string
}

// UploadClient implementa Uploader con el formulario multipart DTEUpload del SII.
type UploadClient struct {
	httpClient *http.Client
	endpoints  map[string]Endpoints
}

// NewUploadClient construye el cliente.
func NewUploadClient(hc *http.Client) *UploadClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &UploadClient{httpClient: hc, endpoints: DefaultEndpoints}
}

// WithEndpoints reemplaza las URLs por ambiente.
func (c *UploadClient) WithEndpoints(eps map[string]Endpoints) *UploadClient {
	c.endpoints = eps
	return c
}

// Upload envía el sobre y devuelve el TrackID asignado.
// STATUS distinto de 0 es ErrUploadRejected; falla de red es ErrTransport.
func (c *UploadClient) Upload(ctx context.Context, in UploadRequest) (*UploadResult, error) {
	eps, ok := c.endpoints[in.Env]
	if !ok {
		return nil, fmt.Errorf("sii: ambiente desconocido %q: %w", in.Env, domain.ErrInvalidInput)
	}
	if len(in.Envelope) == 0 {
		return nil, domain.ErrEmptyEnvelope
	}
	senderBody, senderDV, err := sii.SplitRUT(in.SenderRUT)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	companyBody, companyDV, err := sii.SplitRUT(in.IssuerRUT)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	name := in.FileName
	if name == "" {
		name = "EnvioDTE.xml"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range [][2]string{
		{"rutSender", senderBody}, {"dvSender", senderDV},
		{"rutCompany", companyBody}, {"dvCompany", companyDV},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("sii: armar formulario: %w", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="archivo"; filename="%s"`, name))
	h.Set("Content-Type", "text/xml")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("sii: armar formulario: %w", err)
	}
	if _, err := part.Write(in.Envelope); err != nil {
		return nil, fmt.Errorf("sii: armar formulario: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("sii: armar formulario: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eps.Upload, &body)
	if err != nil {
		return nil, fmt.Errorf("sii: crear request de envío: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", uploadUserAgent)
	if in.SessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "TOKEN", Value: in.SessionToken})
	}

	raw, err := doRequest(ctx, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	return ParseUploadResponse(raw)
}

// ParseUploadResponse interpreta <RECEPCIONDTE>.
func ParseUploadResponse(raw []byte) (*UploadResult, error) {
	root, err := parseRoot(raw)
	if err != nil {
		return nil, err
	}
	status, ok := findText(root, "STATUS")
	if !ok {
		return nil, fmt.Errorf("%w: respuesta de envío sin STATUS", domain.ErrUnparseableResponse)
	}
	trackID, _ := findText(root, "TRACKID")
	ts, _ := findText(root, "TIMESTAMP")
	res := &UploadResult{TrackID: trackID, Status: status, Timestamp: ts}
	if status != "0" {
		return res, fmt.Errorf("%w: STATUS %s", domain.ErrUploadRejected, status)
	}
	if trackID == "" {
		return nil, fmt.Errorf("%w: envío aceptado sin TRACKID", domain.ErrUnparseableResponse)
	}
	return res, nil
}

var _ Uploader = (*UploadClient)(nil)
