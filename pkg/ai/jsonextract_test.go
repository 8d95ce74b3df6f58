package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! Here you go: {"a":"}"} hope it helps`, `{"a":"}"}`},
		{"array", `result: [1,2,3] done`, `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ExtractJSON("no json here")
	require.ErrorIs(t, err, ErrNoJSONFound)
	_, err = ExtractJSON("")
	require.ErrorIs(t, err, ErrNoJSONFound)
}

func TestDecodeListStrictShape(t *testing.T) {
	items, err := DecodeList[card](`{"flashcards":[{"question":"Q1","answer":"A1"}]}`, "flashcards")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Q1", items[0].Question)
}

func TestDecodeListRepairsFirstArrayField(t *testing.T) {
	items, err := DecodeList[card](`{"title":"x","cards":[{"question":"Q","answer":"A"}]}`, "flashcards")
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, err = DecodeList[card](`[{"question":"Q","answer":"A"},{"question":"Q2","answer":"A2"}]`, "flashcards")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestDecodeListFailsWithoutList(t *testing.T) {
	_, err := DecodeList[card](`{"title":"x"}`, "flashcards")
	require.Error(t, err)

	_, err = DecodeList[card](`not json`, "flashcards")
	require.ErrorIs(t, err, ErrNoJSONFound)
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("bad json")
	err := error(&GenerationError{Operation: "flashcards", Reason: "unparseable response", Err: cause})
	assert.True(t, IsGenerationError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "flashcards: unparseable response: bad json", err.Error())
	assert.False(t, IsGenerationError(cause))
}
