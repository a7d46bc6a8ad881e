package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentPIIDetection(t *testing.T) {
	n := NewContentNormalizer(DefaultContentConfig())

	tests := []struct {
		name     string
		input    string
		wantPII  []PIICategory
	}{
		{"email", "reach me at bob@example.com please", []PIICategory{PIIEmail}},
		{"ssn", "my ssn is 123-45-6789 ok", []PIICategory{PIISSN}},
		{"phone", "call 555-123-4567 tomorrow", []PIICategory{PIIPhone}},
		{"card", "card 4111 1111 1111 1111 thanks", []PIICategory{PIICreditCard}},
		{"address", "send it to 123 Main Street today", []PIICategory{PIIAddress}},
		{"clean", "see you at the game", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.input)
			require.True(t, got.IsValid)
			assert.Equal(t, tt.wantPII, got.PIIFound)
		})
	}
}

func TestContentLengthPreservingMask(t *testing.T) {
	n := NewContentNormalizer(DefaultContentConfig())

	input := "reach me at bob@example.com please"
	got := n.Normalize(input)
	require.Contains(t, got.PIIFound, PIIEmail)

	assert.Len(t, got.Sanitized, len(input))
	assert.NotContains(t, got.Sanitized, "bob@example.com")
	assert.Contains(t, got.Sanitized, "***")
}

func TestContentPlaceholderMask(t *testing.T) {
	n := NewContentNormalizer(ContentConfig{MaskMode: MaskPlaceholder})

	got := n.Normalize("reach me at bob@example.com please")
	assert.Contains(t, got.Sanitized, "[EMAIL]")
	assert.NotContains(t, got.Sanitized, "bob@example.com")
}

func TestContentClassification(t *testing.T) {
	n := NewContentNormalizer(DefaultContentConfig())

	tests := []struct {
		input string
		want  ContentCategory
	}{
		{"congratulations you are a winner claim your free prize", ContentSpam},
		{"your invoice for order 1234 is ready, please confirm delivery", ContentBusiness},
		{"happy birthday! miss you, see you at dinner", ContentPersonal},
		{"ok", ContentGeneral},
		{"", ContentGeneral},
	}

	for _, tt := range tests {
		got := n.Normalize(tt.input)
		assert.Equal(t, tt.want, got.Category, "input %q", tt.input)
	}
}

func TestContentLanguageGuess(t *testing.T) {
	n := NewContentNormalizer(DefaultContentConfig())

	en := n.Normalize("are you coming to the party with this group")
	assert.Equal(t, "en", en.Language)

	es := n.Normalize("esta es una cita para los martes con el equipo")
	assert.Equal(t, "es", es.Language)

	none := n.Normalize("xyzzy")
	assert.Equal(t, "", none.Language)
}

func TestContentEmptyIsValid(t *testing.T) {
	n := NewContentNormalizer(DefaultContentConfig())

	got := n.Normalize("   ")
	assert.True(t, got.IsValid)
	assert.Equal(t, "", got.Sanitized)
	assert.Empty(t, got.PIIFound)
}

func TestContentMaskKeepsSpaces(t *testing.T) {
	masked := maskPreservingLength("4111 1111 1111 1111")
	assert.Equal(t, len("4111 1111 1111 1111"), len(masked))
	assert.Equal(t, 3, strings.Count(masked, " "))
	assert.NotContains(t, masked, "4")
}
