package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapse whitespace", "  John \t Smith\n", "John Smith"},
		{"zero width", "jo\u200bhn@ex\ufeffample.com", "john@example.com"},
		{"fullwidth at", "john\uff20example.com", "john@example.com"},
		{"smart quotes", "\u201cACME\u201d", "\"ACME\""},
		{"ideographic space", "山田\u3000太郎", "山田 太郎"},
		{"nfc composes", "Nguye\u0302\u0303n", "Nguy\u1ec5n"},
		{"control chars", "a\x00b\x07c", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in, DefaultCleanOptions()))
		})
	}
}

func TestCleanText_NFKC(t *testing.T) {
	opts := CleanOptions{NormalizeForm: "NFKC"}
	assert.Equal(t, "ABC123", CleanText("ＡＢＣ１２３", opts))
}

func TestCleanText_CustomReplaceMap(t *testing.T) {
	opts := CleanOptions{
		NormalizeForm: "NFC",
		ReplaceMap:    map[string]string{"(at)": "@", "(a": "X"},
	}
	// longer key wins regardless of map iteration order
	assert.Equal(t, "john@example.com", CleanText("john(at)example.com", opts))
}

func TestToken_Validate(t *testing.T) {
	assert.NoError(t, tok("a", 0.5, 0, 0, 1, 1).Validate())
	assert.Error(t, tok("", 0.5, 0, 0, 1, 1).Validate())
	assert.Error(t, tok("a", -0.1, 0, 0, 1, 1).Validate())
	assert.Error(t, tok("a", 0.5, 0, 0, 0, 1).Validate())
	assert.Error(t, tok("a", 0.5, 0, 0, 1, 0).Validate())
}

func TestQuadFromRect_NormalizesOrder(t *testing.T) {
	q := QuadFromRect(10, 20, 0, 5)
	minX, minY, maxX, maxY := q.Bounds()
	assert.Equal(t, []float64{0, 5, 10, 20}, []float64{minX, minY, maxX, maxY})
	assert.True(t, q.Valid())
}
