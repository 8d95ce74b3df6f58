package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
	docxHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	docxFooter = `<w:sectPr/></w:body></w:document>`
)

// DocxExporter writes a minimal WordprocessingML package.
type DocxExporter struct{}

// NewDocxExporter builds a docx exporter.
func NewDocxExporter() *DocxExporter {
	return &DocxExporter{}
}

// Render produces the .docx archive bytes.
func (e *DocxExporter) Render(r Report) ([]byte, error) {
	body := &docxBody{}
	body.paragraph(r.Heading, 36, true, false)
	body.paragraph("Information", 28, true, false)
	for _, f := range r.Info {
		body.paragraph(f.Label+": "+f.Value, 0, false, false)
	}
	body.paragraph("Generated: "+stamp(generatedAt(r)), 0, false, false)

	for _, s := range r.Sections {
		body.paragraph(s.Heading, 28, true, true)
		body.lines(s.Body)
	}

	body.paragraph("Chat History", 28, true, true)
	if len(r.Chat) == 0 {
		body.paragraph("No chat history available.", 0, false, false)
	}
	for _, turn := range r.Chat {
		body.paragraph(fmt.Sprintf("%s (%s)", roleTitle(turn.Role), stamp(turn.Timestamp)), 0, true, false)
		body.lines(turn.Content)
	}

	if r.Transcript != "" {
		body.paragraph("Full Transcript", 28, true, true)
		body.lines(r.Transcript)
	}

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", docxHeader + body.String() + docxFooter},
	}
	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("create docx part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.data)); err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

type docxBody struct {
	strings.Builder
}

func (b *docxBody) lines(text string) {
	for _, line := range strings.Split(text, "\n") {
		b.paragraph(line, 0, false, false)
	}
}

// paragraph appends one w:p. size is in half-points, 0 keeps the default.
func (b *docxBody) paragraph(text string, size int, bold, pageBreak bool) {
	b.WriteString("<w:p>")
	if pageBreak {
		b.WriteString(`<w:r><w:br w:type="page"/></w:r>`)
	}
	b.WriteString("<w:r>")
	if bold || size > 0 {
		b.WriteString("<w:rPr>")
		if bold {
			b.WriteString("<w:b/>")
		}
		if size > 0 {
			fmt.Fprintf(b, `<w:sz w:val="%d"/>`, size)
		}
		b.WriteString("</w:rPr>")
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(b, []byte(text))
	b.WriteString("</w:t></w:r></w:p>")
}
