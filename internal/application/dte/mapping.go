package dte

import (
	"fmt"
	"time"

	"github.com/jhoicas/dte-api/internal/application/dto"
	"github.com/jhoicas/dte-api/internal/domain/entity"
	infrasii "github.com/jhoicas/dte-api/internal/infrastructure/sii"
	"github.com/jhoicas/dte-api/internal/infrastructure/sii/ted"
)

func documentURL(dteType int, folio int64) string {
	return fmt.Sprintf("/api/dte/%d/%d", dteType, folio)
}

func toParty(p dto.PartyRequest) infrasii.Party {
	return infrasii.Party{
		RUT:          p.RUT,
		Name:         p.Name,
		Activity:     p.Activity,
		ActivityCode: p.ActivityCode,
		Address:      p.Address,
		Commune:      p.Commune,
		City:         p.City,
	}
}

func toDocumentInput(in dto.InvoiceSummary, folio int64, date time.Time, stamp *ted.SignedStamp, signedAt time.Time) *infrasii.DocumentInput {
	items := make([]infrasii.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, infrasii.LineItem{
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice,
			Amount:      it.Amount,
			Exempt:      it.Exempt,
		})
	}
	doc := &infrasii.DocumentInput{
		DocumentType: in.DocumentType,
		Folio:        folio,
		IssueDate:    date,
		Issuer:       toParty(in.Issuer),
		Receiver:     toParty(in.Receiver),
		Totals: infrasii.Totals{
			Net:     in.NetAmount,
			Exempt:  in.ExemptAmount,
			VATRate: in.VATRate,
			VAT:     in.VATAmount,
			Total:   in.Total,
		},
		Items:    items,
		Stamp:    stamp,
		SignedAt: signedAt,
	}
	if in.DueDate != "" {
		if t, err := time.Parse("2006-01-02", in.DueDate); err == nil {
			doc.DueDate = &t
		}
	}
	return doc
}

func toDocumentResponse(rec *entity.IssuanceRecord) *dto.DocumentResponse {
	return &dto.DocumentResponse{
		DocumentType: rec.DocumentType,
		Folio:        rec.Folio,
		Status:       rec.Status,
		TrackingID:   rec.TrackID,
		Total:        rec.Total,
		VoidReason:   rec.VoidReason,
		XMLContent:   rec.DocumentXML,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
}
