package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

// SaveSummaryPDF renders a one-page PDF overview of a decoded session:
// header fields, frame counts per type, resync count, and first/last
// timestamp.
func SaveSummaryPDF(rep Summary, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Blackbox Log Summary", false)
	pdf.SetAuthor("bbctl", false)
	pdf.SetCreator("bbctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Blackbox Log Summary")
	addOverviewSection(pdf, rep)
	addFrameCountSection(pdf, rep.FrameCounts)
	addHeaderSection(pdf, rep.Headers)
	addHashQRFooter(pdf, rep.SourceHash)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

// addHashQRFooter embeds a QR code of the source file's SHA-256 digest in
// the page footer, so a printed report can be traced back to its log file.
func addHashQRFooter(pdf *gofpdf.Fpdf, hash string) {
	if hash == "" {
		return
	}
	png, err := SourceHashToQR(hash, 256)
	if err != nil {
		return
	}
	const imageName = "source-hash-qr"
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(png))
	if pdf.Err() {
		return
	}
	_, pageHeight := pdf.GetPageSize()
	size := 20.0
	pdf.ImageOptions(imageName, 15, pageHeight-size-12, size, size, false, opts, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(15+size+3, pageHeight-size-12+size/2-3)
	pdf.Cell(0, 6, "SHA-256: "+hash)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addOverviewSection(pdf *gofpdf.Fpdf, rep Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Overview")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Source", value: emptyFallback(rep.Source, "-")},
		{label: "Session", value: fmt.Sprintf("%d of %d", rep.LogIndex, rep.LogCount)},
		{label: "Resyncs", value: strconv.FormatInt(rep.ResyncCount, 10)},
		{label: "Events", value: strconv.Itoa(rep.EventCount)},
		{label: "First Time (us)", value: timeLabel(rep.HasTime, rep.FirstTimeUs)},
		{label: "Last Time (us)", value: timeLabel(rep.HasTime, rep.LastTimeUs)},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFrameCountSection(pdf *gofpdf.Fpdf, counts []FrameCount) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Frame Counts")
	pdf.Ln(9)

	headers := []string{"Type", "Count"}
	widths := []float64{40, 40}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(counts) == 0 {
		pdf.CellFormat(widths[0], 6, "-", "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, "0", "1", 1, "L", false, 0, "")
	}
	for _, c := range counts {
		pdf.CellFormat(widths[0], 6, c.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, strconv.Itoa(c.Count), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addHeaderSection(pdf *gofpdf.Fpdf, headers map[string]string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Header Fields")
	pdf.Ln(9)

	if len(headers) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No header fields recorded.", "", "L", false)
		return
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pdf.SetFont("Helvetica", "", 9)
	for _, k := range keys {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(60, 5, k, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, headers[k], "", "L", false)
	}
}

func timeLabel(has bool, v int64) string {
	if !has {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

func emptyFallback(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}
