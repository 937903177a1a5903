package delivery

import (
	"bytes"
	"fmt"

	"ms-eventhub/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// PDFRenderer lays out one A4 page per seat.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render builds the printable ticket. qrs maps each code to its PNG.
func (r *PDFRenderer) Render(b *models.TicketBundle, qrs map[string][]byte) ([]byte, error) {
	if b == nil || b.Ticket == nil {
		return nil, fmt.Errorf("render pdf: empty bundle")
	}
	t := b.Ticket

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title, when, venue, holder := "Event", "", "", ""
	if b.Event != nil {
		title = b.Event.Title
		when = b.Event.EventDate.Format("Mon, 02 Jan 2006 15:04")
	}
	if b.Venue != nil {
		venue = b.Venue.Name
		if b.Venue.Address != "" {
			venue += ", " + b.Venue.Address
		}
	}
	if b.User != nil {
		holder = b.User.Email
		if b.User.FullName != "" {
			holder = b.User.FullName + " <" + b.User.Email + ">"
		}
	}

	for i, code := range t.Codes {
		pdf.AddPage()

		// Header
		pdf.SetFillColor(33, 37, 41)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFont("Arial", "B", 20)
		pdf.CellFormat(0, 16, "EVENT TICKET", "", 1, "C", true, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 16)
		pdf.MultiCell(0, 8, tr(title), "", "L", false)
		pdf.Ln(4)

		pdf.SetFont("Arial", "", 12)
		rows := [][2]string{
			{"Date", when},
			{"Venue", venue},
			{"Ticket holder", holder},
			{"Ticket code", code},
			{"Seat", fmt.Sprintf("%d of %d", i+1, len(t.Codes))},
			{"Order", t.SessionID},
			{"Paid", fmt.Sprintf("%.2f", t.AmountTotal)},
		}
		for _, row := range rows {
			pdf.SetFont("Arial", "B", 12)
			pdf.CellFormat(45, 8, row[0]+":", "", 0, "L", false, 0, "")
			pdf.SetFont("Arial", "", 12)
			pdf.CellFormat(0, 8, tr(row[1]), "", 1, "L", false, 0, "")
		}

		if png, ok := qrs[code]; ok && len(png) > 0 {
			name := "qr-" + code
			opts := gofpdf.ImageOptions{ImageType: "PNG"}
			pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
			pdf.ImageOptions(name, 65, pdf.GetY()+10, 80, 80, false, opts, 0, "")
		}

		// Footer
		pdf.SetY(-30)
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, "Present this code at the entrance. Each code admits one person once.", "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
