package bank

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abcQuestions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			Prompt: "question",
			Options: []Option{
				{Label: "A", Text: "a", Score: 0},
				{Label: "B", Text: "b", Score: 1},
				{Label: "C", Text: "c", Score: 2},
			},
		}
	}
	return qs
}

func xyzwCategories() []Category {
	return []Category{
		{Name: "X", Min: 0, Max: 2},
		{Name: "Y", Min: 3, Max: 4},
		{Name: "Z", Min: 5, Max: 6},
		{Name: "W", Min: 7, Max: 8},
	}
}

func TestNew_ValidBank(t *testing.T) {
	b, err := New(abcQuestions(4), xyzwCategories())
	require.NoError(t, err)

	assert.Equal(t, 4, b.Len())
	lo, hi := b.ScoreRange()
	assert.Equal(t, 0, lo)
	assert.Equal(t, 8, hi)

	q, err := b.Get(3)
	require.NoError(t, err)
	assert.Equal(t, 3, q.Index)
	assert.Equal(t, []string{"A", "B", "C"}, q.Labels())
}

func TestGet_OutOfRange(t *testing.T) {
	b, err := New(abcQuestions(2), []Category{{Name: "all", Min: 0, Max: 4}})
	require.NoError(t, err)

	for _, i := range []int{-1, 2, 100} {
		_, err := b.Get(i)
		assert.ErrorIs(t, err, ErrOutOfRange, "index %d", i)
	}
}

func TestQuestionOption_CaseInsensitive(t *testing.T) {
	q := abcQuestions(1)[0]

	o, ok := q.Option(" b ")
	require.True(t, ok)
	assert.Equal(t, "B", o.Label)
	assert.Equal(t, 1, o.Score)

	_, ok = q.Option("Z")
	assert.False(t, ok)
	_, ok = q.Option("")
	assert.False(t, ok)
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		questions  []Question
		categories []Category
		contains   string
	}{
		{
			name:       "no questions",
			questions:  nil,
			categories: []Category{{Name: "x", Min: 0, Max: 0}},
			contains:   "no questions",
		},
		{
			name:       "empty prompt",
			questions:  []Question{{Options: abcQuestions(1)[0].Options}},
			categories: []Category{{Name: "x", Min: 0, Max: 2}},
			contains:   "empty prompt",
		},
		{
			name: "duplicate label",
			questions: []Question{{Prompt: "p", Options: []Option{
				{Label: "A", Score: 0}, {Label: "a", Score: 1},
			}}},
			categories: []Category{{Name: "x", Min: 0, Max: 1}},
			contains:   "duplicate label",
		},
		{
			name:       "single option",
			questions:  []Question{{Prompt: "p", Options: []Option{{Label: "A"}}}},
			categories: []Category{{Name: "x", Min: 0, Max: 0}},
			contains:   "at least 2 options",
		},
		{
			name:      "gap",
			questions: abcQuestions(4),
			categories: []Category{
				{Name: "X", Min: 0, Max: 2},
				{Name: "Z", Min: 5, Max: 8},
			},
			contains: "gap between",
		},
		{
			name:      "overlap",
			questions: abcQuestions(4),
			categories: []Category{
				{Name: "X", Min: 0, Max: 4},
				{Name: "Z", Min: 4, Max: 8},
			},
			contains: "overlap",
		},
		{
			name:       "top uncovered",
			questions:  abcQuestions(4),
			categories: []Category{{Name: "X", Min: 0, Max: 7}},
			contains:   "8..8 uncovered",
		},
		{
			name:       "bottom uncovered",
			questions:  abcQuestions(4),
			categories: []Category{{Name: "X", Min: 1, Max: 8}},
			contains:   "0..0 uncovered",
		},
		{
			name:       "inverted range",
			questions:  abcQuestions(1),
			categories: []Category{{Name: "X", Min: 2, Max: 0}},
			contains:   "min 2 > max 0",
		},
		{
			name:       "no categories",
			questions:  abcQuestions(1),
			categories: nil,
			contains:   "no result categories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.questions, tt.categories)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidBank))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNew_ReportsAllProblems(t *testing.T) {
	questions := []Question{
		{Prompt: "", Options: []Option{{Label: "A"}, {Label: "A"}}},
	}
	_, err := New(questions, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty prompt")
	assert.Contains(t, err.Error(), "duplicate label")
	assert.Contains(t, err.Error(), "no result categories")
}

func TestNew_UnorderedCategoriesAccepted(t *testing.T) {
	cats := xyzwCategories()
	cats[0], cats[3] = cats[3], cats[0]
	_, err := New(abcQuestions(4), cats)
	require.NoError(t, err)
}

func TestDefault(t *testing.T) {
	b := Default()
	assert.Equal(t, 4, b.Len())
	lo, hi := b.ScoreRange()
	assert.Equal(t, 2, lo)
	assert.Equal(t, 14, hi)
	assert.Len(t, b.Categories(), 4)
}

func TestLoad(t *testing.T) {
	doc := `
questions:
  - prompt: "Pick one"
    options:
      - {label: A, text: first, score: 0}
      - {label: B, text: second, score: 1}
categories:
  - {name: low, min: 0, max: 0, advice: rest}
  - {name: high, min: 1, max: 1, advice: move, media: "https://example.com/high.png"}
`
	path := filepath.Join(t.TempDir(), "bank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	b, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())
	cats := b.Categories()
	assert.Equal(t, "https://example.com/high.png", cats[1].Media)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("questions: []\nbogus: 1\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBank)
}
