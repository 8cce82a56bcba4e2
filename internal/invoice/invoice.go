// Package invoice renders the printable invoice of an order.
package invoice

import (
	"bytes"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/phpdave11/gofpdf"
	"github.com/skip2/go-qrcode"
)

func money(cents int64) string {
	return fmt.Sprintf("%d.%02d RWF", cents/100, cents%100)
}

// Render returns an A4 PDF with the order's items and a QR code pointing
// at trackingURL.
func Render(o orders.Order, trackingURL string) ([]byte, error) {
	qrPNG, err := qrcode.Encode(trackingURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	for _, line := range []string{
		"Order: " + o.ID,
		"Date: " + o.CreatedAt.Format("2006-01-02 15:04"),
		"Phone: " + o.Phone,
		"Address: " + o.Address,
		fmt.Sprintf("Status: %s / %s", o.Status, o.PaymentStatus),
		"Payment method: " + o.PaymentMethod,
	} {
		pdf.Cell(0, 7, line)
		pdf.Ln(7)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr", 160, 15, 35, 35, false, opts, 0, "")
	pdf.Ln(6)

	widths := []float64{90, 20, 15, 30, 35}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range []string{"Item", "Size", "Qty", "Price", "Subtotal"} {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, it := range o.Items {
		size := it.Size
		if size == "" {
			size = "-"
		}
		cells := []string{it.ProductName, size, fmt.Sprint(it.Qty), money(it.PriceCents), money(it.Subtotal())}
		for i, c := range cells {
			align := "L"
			if i >= 2 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 7, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(widths[0]+widths[1]+widths[2]+widths[3], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, money(o.TotalCents), "1", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
