package export

import (
	"fmt"
	"strings"
)

// MarkdownExporter renders reports as GitHub flavoured markdown.
type MarkdownExporter struct{}

// NewMarkdownExporter builds a markdown exporter.
func NewMarkdownExporter() *MarkdownExporter {
	return &MarkdownExporter{}
}

// Render produces the markdown document.
func (e *MarkdownExporter) Render(r Report) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Heading)

	b.WriteString("## Information\n")
	for _, f := range r.Info {
		fmt.Fprintf(&b, "- **%s:** %s\n", f.Label, f.Value)
	}
	fmt.Fprintf(&b, "- **Generated:** %s\n", stamp(generatedAt(r)))

	for _, s := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n%s\n", s.Heading, s.Body)
	}

	if r.Transcript != "" {
		fmt.Fprintf(&b, "\n## Transcript\n```\n%s\n```\n", r.Transcript)
	}

	b.WriteString("\n## Chat History\n")
	if len(r.Chat) == 0 {
		b.WriteString("\nNo chat history available.\n")
	}
	for _, turn := range r.Chat {
		fmt.Fprintf(&b, "\n### %s (%s)\n%s\n", roleTitle(turn.Role), stamp(turn.Timestamp), turn.Content)
	}
	return []byte(b.String()), nil
}
