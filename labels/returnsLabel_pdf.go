package labels

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/jung-kurt/gofpdf"
)

// ReturnLabelData carries everything printed on a returns label.
type ReturnLabelData struct {
	InvoiceNumber int64
	AccountNumber string
	ReturnsNumber *int64
	Status        string
	ImageCount    int
	CreatedAt     time.Time
}

// renderReturnLabelPDF produces a single A4 landscape label with a
// Code128 barcode of the invoice number, so the physical item can be
// rescanned straight back to its record.
func renderReturnLabelPDF(label ReturnLabelData, printedAt time.Time) ([]byte, error) {
	barcodeValue := fmt.Sprintf("%08d", label.InvoiceNumber)
	barcodePNG, err := renderCode128PNG(barcodeValue, 1200, 260)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Return Label", false)
	pdf.AddPage()

	account := strings.TrimSpace(label.AccountNumber)
	if account == "" {
		account = "Unknown Account"
	}
	status := strings.ToUpper(strings.TrimSpace(label.Status))
	if status == "" {
		status = "LOGGED"
	}
	returnsText := "N/A"
	if label.ReturnsNumber != nil {
		returnsText = fmt.Sprintf("%08d", *label.ReturnsNumber)
	}
	createdText := "N/A"
	if !label.CreatedAt.IsZero() {
		createdText = label.CreatedAt.Format("02/01/2006")
	}

	pdf.SetFont("Helvetica", "B", 44)
	pdf.CellFormat(0, 20, account, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 52)
	pdf.CellFormat(0, 22, "INVOICE "+barcodeValue, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 9, "Status: "+status, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 9, "Returns No: "+returnsText, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 9, fmt.Sprintf("Photos: %d", label.ImageCount), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 9, "Logged: "+createdText, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 9, "Printed: "+printedAt.Format("02/01/2006"), "", 1, "C", false, 0, "")

	opt := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	imageName := fmt.Sprintf("return-barcode-%d", label.InvoiceNumber)
	pdf.RegisterImageOptionsReader(imageName, opt, bytes.NewReader(barcodePNG))
	pageW, _ := pdf.GetPageSize()
	imgW := 240.0
	imgH := 56.0
	x := (pageW - imgW) / 2
	y := 118.0
	pdf.ImageOptions(imageName, x, y, imgW, imgH, false, opt, 0, "")

	pdf.SetY(y + imgH + 6)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 12, barcodeValue, "", 1, "C", false, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func renderCode128PNG(value string, width, height int) ([]byte, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}
	normalized := toNRGBA(scaled)
	var barcodePNG bytes.Buffer
	if err := png.Encode(&barcodePNG, normalized); err != nil {
		return nil, err
	}
	return barcodePNG.Bytes(), nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}
