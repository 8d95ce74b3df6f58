package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders study reports into an A4 PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the report heading, info table, sections, chat and transcript.
func (e *PDFExporter) Render(r Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(r.Heading, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(44, 62, 80)
	pdf.CellFormat(0, 12, tr(r.Heading), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetTextColor(0, 0, 0)
	heading := func(text string) {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 14)
		pdf.SetTextColor(52, 73, 94)
		pdf.CellFormat(0, 9, tr(text), "", 1, "", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	body := func(text string) {
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(0, 6, tr(text), "", "", false)
	}

	heading("Information")
	info := append(append([]Field{}, r.Info...), Field{Label: "Generated", Value: stamp(generatedAt(r))})
	for _, f := range info {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 7, tr(f.Label), "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, tr(f.Value), "1", 1, "", false, 0, "")
	}

	for _, s := range r.Sections {
		heading(s.Heading)
		body(s.Body)
	}

	heading("Chat History")
	if len(r.Chat) == 0 {
		body("No chat history available.")
	}
	for _, turn := range r.Chat {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s (%s)", roleTitle(turn.Role), stamp(turn.Timestamp))), "", 1, "", false, 0, "")
		body(turn.Content)
		pdf.Ln(2)
	}

	if r.Transcript != "" {
		pdf.AddPage()
		heading("Full Transcript")
		body(r.Transcript)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
