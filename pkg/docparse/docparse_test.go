package docparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/pkg/export"
)

func TestExtractPlainText(t *testing.T) {
	text, err := Extract("notes.TXT", []byte("  photosynthesis basics \n"))
	require.NoError(t, err)
	assert.Equal(t, "photosynthesis basics", text)

	_, err = Extract("empty.txt", []byte("   "))
	require.ErrorIs(t, err, ErrEmpty)
}

func TestExtractUnsupported(t *testing.T) {
	_, err := Extract("deck.key", []byte("x"))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestExtractDocxRoundTripsExport(t *testing.T) {
	data, err := export.NewDocxExporter().Render(export.Report{
		Heading:  "Cell Biology",
		Sections: []export.Section{{Heading: "Short Summary", Body: "Mitochondria & ATP\nRibosomes"}},
	})
	require.NoError(t, err)

	text, err := Extract("cells.docx", data)
	require.NoError(t, err)
	assert.Contains(t, text, "Cell Biology")
	assert.Contains(t, text, "Mitochondria & ATP")
	assert.Contains(t, text, "Ribosomes")
}

func TestExtractLegacyDocFails(t *testing.T) {
	_, err := Extract("old.doc", []byte{0xD0, 0xCF, 0x11, 0xE0})
	require.Error(t, err)
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := Extract("broken.pdf", []byte("not a pdf"))
	require.Error(t, err)
	_, err = ExtractPDF(nil)
	require.Error(t, err)
}

func TestSanitizePDFTrimsTrailingData(t *testing.T) {
	in := []byte("%PDF-1.4\nbody\n%%EOF\n<html>appended by a proxy</html>")
	assert.Equal(t, []byte("%PDF-1.4\nbody\n%%EOF\n"), sanitizePDF(in))

	clean := []byte("%PDF-1.4\nbody\n%%EOF\n")
	assert.Equal(t, clean, sanitizePDF(clean))

	other := []byte("plain text")
	assert.Equal(t, other, sanitizePDF(other))
}
