package export

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Format identifies a study report export format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPDF:
		return FormatPDF, true
	case FormatDocx:
		return FormatDocx, true
	case FormatMarkdown:
		return FormatMarkdown, true
	}
	return "", false
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "text/markdown"
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Field is a label/value row in the report header.
type Field struct {
	Label string
	Value string
}

// Section is a titled block of prose.
type Section struct {
	Heading string
	Body    string
}

// ChatTurn is one exchange entry rendered in the chat history section.
type ChatTurn struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Report is the format-neutral content of a study session export.
type Report struct {
	Heading     string
	Info        []Field
	Sections    []Section
	Chat        []ChatTurn
	Transcript  string
	GeneratedAt time.Time
}

// Renderer turns a report into bytes for one format.
type Renderer interface {
	Render(report Report) ([]byte, error)
}

// RendererFor returns the renderer registered for a format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatPDF:
		return NewPDFExporter(), nil
	case FormatDocx:
		return NewDocxExporter(), nil
	case FormatMarkdown:
		return NewMarkdownExporter(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// SafeFilename keeps letters, digits, spaces, dashes and underscores.
func SafeFilename(title, fallback string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimRight(b.String(), " ")
	if out == "" {
		return fallback
	}
	return out
}

// FormatDuration renders seconds as H:MM:SS or M:SS.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "Unknown"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func roleTitle(role string) string {
	if role == "" {
		return "Unknown"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func generatedAt(r Report) time.Time {
	if r.GeneratedAt.IsZero() {
		return time.Now()
	}
	return r.GeneratedAt
}
