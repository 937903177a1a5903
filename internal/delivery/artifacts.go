package delivery

import (
	"context"
	"errors"
	"fmt"

	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
)

// BundleLoader loads what a ticket render needs.
type BundleLoader interface {
	GetBundle(ctx context.Context, ticketID string) (*models.TicketBundle, error)
}

// Artifacts renders QR images and PDFs and caches them in a Store.
type Artifacts struct {
	store   Store
	qr      *QRGenerator
	pdf     *PDFRenderer
	bundles BundleLoader
	logger  *logger.Logger
}

func NewArtifacts(store Store, qr *QRGenerator, bundles BundleLoader, log *logger.Logger) *Artifacts {
	return &Artifacts{store: store, qr: qr, pdf: NewPDFRenderer(), bundles: bundles, logger: log}
}

func qrKey(code string) string     { return "qrcodes/" + code + ".png" }
func pdfKey(ticketID string) string { return "tickets/" + ticketID + ".pdf" }

// RenderAll renders and stores every QR image and the PDF of a bundle.
func (a *Artifacts) RenderAll(ctx context.Context, b *models.TicketBundle) ([]byte, map[string][]byte, error) {
	qrs := make(map[string][]byte, len(b.Ticket.Codes))
	for i, code := range b.Ticket.Codes {
		png, err := a.renderQR(ctx, b.Ticket, code, i+1)
		if err != nil {
			return nil, nil, err
		}
		qrs[code] = png
	}

	doc, err := a.pdf.Render(b, qrs)
	if err != nil {
		return nil, nil, err
	}
	if err := a.store.Put(ctx, pdfKey(b.Ticket.ID), doc, "application/pdf"); err != nil {
		return nil, nil, err
	}
	a.logger.LogDelivery(b.Ticket.ID, fmt.Sprintf("rendered %d qr code(s) and pdf", len(qrs)))
	return doc, qrs, nil
}

func (a *Artifacts) renderQR(ctx context.Context, t *models.Ticket, code string, seat int) ([]byte, error) {
	png, err := a.qr.PNG(QRPayload{TicketID: t.ID, EventID: t.EventID, Code: code, Seat: seat})
	if err != nil {
		return nil, fmt.Errorf("render qr %s: %w", code, err)
	}
	if err := a.store.Put(ctx, qrKey(code), png, "image/png"); err != nil {
		return nil, err
	}
	return png, nil
}

// QRCode serves a stored QR image, rendering it on first request.
func (a *Artifacts) QRCode(ctx context.Context, t *models.Ticket, code string) ([]byte, error) {
	png, err := a.store.Get(ctx, qrKey(code))
	if err == nil {
		return png, nil
	}
	if !errors.Is(err, ErrArtifactNotFound) {
		return nil, err
	}
	seat := 1
	for i, c := range t.Codes {
		if c == code {
			seat = i + 1
		}
	}
	return a.renderQR(ctx, t, code, seat)
}

// PDF serves the stored PDF, rendering everything on first request.
func (a *Artifacts) PDF(ctx context.Context, ticketID string) ([]byte, error) {
	doc, err := a.store.Get(ctx, pdfKey(ticketID))
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, ErrArtifactNotFound) {
		return nil, err
	}
	b, err := a.bundles.GetBundle(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	doc, _, err = a.RenderAll(ctx, b)
	return doc, err
}

// Remove deletes every stored file of a ticket.
func (a *Artifacts) Remove(ctx context.Context, t *models.Ticket) error {
	var errs []error
	for _, code := range t.Codes {
		if err := a.store.Delete(ctx, qrKey(code)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.store.Delete(ctx, pdfKey(t.ID)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
