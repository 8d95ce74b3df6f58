package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// Card is one flashcard row in a deck export.
type Card struct {
	Question    string
	Answer      string
	Explanation string
}

// Deck is an ordered set of flashcards rendered as one spreadsheet.
type Deck struct {
	Cards []Card
	// WithBOM prefixes the output with a UTF-8 byte order mark so spreadsheet
	// tools pick the right encoding for non-latin text.
	WithBOM bool
}

var deckHeader = []string{"question", "answer", "explanation"}

// CSVExporter renders flashcard decks as CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes with one row per card. Embedded line breaks are
// folded to spaces so every card stays on a single spreadsheet row.
func (e *CSVExporter) Render(deck Deck) ([]byte, error) {
	if len(deck.Cards) == 0 {
		return nil, errors.New("deck has no cards")
	}
	buf := &bytes.Buffer{}
	if deck.WithBOM {
		buf.WriteString("\ufeff")
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(deckHeader); err != nil {
		return nil, fmt.Errorf("write deck header: %w", err)
	}
	for i, card := range deck.Cards {
		record := []string{flatten(card.Question), flatten(card.Answer), flatten(card.Explanation)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write card %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush deck: %w", err)
	}
	return buf.Bytes(), nil
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
