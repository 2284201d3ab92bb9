package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fallback(text string) *ContactRecord {
	return NewEngine(nil, DefaultConfig(), nil).Fallback(text)
}

func TestEmailRule(t *testing.T) {
	m := EmailRule([]string{"Mail: john.smith@acme.co.jp / j@x.io"}, []bool{false})
	require.Len(t, m, 2)
	assert.Equal(t, "john.smith@acme.co.jp", m[0].Value)
	assert.Equal(t, ConfidencePattern, m[0].Confidence)
}

func TestWebsiteRule(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"www.acme.com", []string{"www.acme.com"}},
		{"Visit https://acme.com/contact.", []string{"https://acme.com/contact"}},
		{"acme.co.jp", []string{"acme.co.jp"}},
		{"john@acme.com", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var got []string
			for _, m := range WebsiteRule([]string{tt.line}, []bool{false}) {
				got = append(got, m.Value)
			}
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want[0], got[0])
		})
	}
}

func TestPhoneRule(t *testing.T) {
	rule := PhoneRule(newKeywordSet(DefaultRulesConfig().MobileKeywords))

	tests := []struct {
		name  string
		line  string
		field []string
	}{
		{"plain", "+84 28 3822 1234", []string{FieldPhone}},
		{"labelled mobile", "Mobile: 090-1234-5678", []string{FieldMobile}},
		{"label after", "090 1234 5678 (cell)", []string{FieldMobile}},
		{"tel then mobile", "Tel: 03-1234-5678 M: 090-1111-2222", []string{FieldPhone, FieldMobile}},
		{"too short", "Room 12-34", nil},
		{"too long", "1234567890123456789", nil},
		{"fax skipped", "Fax: 03-1234-5679", nil},
		{"japanese mobile", "携帯 080-9999-0000", []string{FieldMobile}},
		{"two numbers split by slash", "Tel: 03-1234-5678 / 090-1234-5678", []string{FieldPhone, FieldPhone}},
		{"two numbers split by space", "Tel 0312345678 0901234567", []string{FieldPhone, FieldPhone}},
		{"two numbers split by wide gap", "03 1234 5678   090 1234 5678", []string{FieldPhone, FieldPhone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, m := range rule([]string{tt.line}, []bool{false}) {
				got = append(got, m.Field)
			}
			assert.Equal(t, tt.field, got)
		})
	}
}

func TestPhoneRule_RunTogetherNumbers(t *testing.T) {
	rule := PhoneRule(newKeywordSet(DefaultRulesConfig().MobileKeywords))

	tests := []struct {
		line string
		want []string
	}{
		{"Tel: 03-1234-5678 / 090-1234-5678", []string{"03-1234-5678", "090-1234-5678"}},
		{"Tel 0312345678 0901234567", []string{"0312345678", "0901234567"}},
		{"+84 28 3822 1234/+84 90 123 4567", []string{"+84 28 3822 1234", "+84 90 123 4567"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var got []string
			for _, m := range rule([]string{tt.line}, []bool{false}) {
				got = append(got, m.Value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyRules_TwoNumbersOnOneLine(t *testing.T) {
	rec := ApplyRules(DefaultRules(DefaultRulesConfig()), []string{"Jane Doe", "Tel: 03-1234-5678 / 090-1234-5678"})
	assert.Equal(t, "03-1234-5678", rec.Value(FieldPhone))
	assert.Empty(t, rec.Value(FieldOther))
}

func TestNameRule(t *testing.T) {
	cfg := DefaultRulesConfig()
	rule := NameRule(newKeywordSet(cfg.TitleKeywords), newKeywordSet(cfg.CompanySuffixes))

	lines := []string{"ACME Inc.", "Senior Engineer", "room 5", "John Smith", "Jane Doe"}
	m := rule(lines, make([]bool, len(lines)))
	require.Len(t, m, 1)
	assert.Equal(t, "John Smith", m[0].Value)
	assert.Equal(t, 3, m[0].Line)

	claimed := []bool{false, false, false, true, false}
	m = rule(lines, claimed)
	require.Len(t, m, 1)
	assert.Equal(t, "Jane Doe", m[0].Value)

	assert.Empty(t, rule([]string{"john smith"}, []bool{false}), "lower-case words are not a name")
	assert.NotEmpty(t, rule([]string{"山田 太郎"}, []bool{false}))
}

func TestKeywordMatching(t *testing.T) {
	ks := newKeywordSet([]string{"Inc", "vice president", "株式会社", "s.a."})
	assert.True(t, ks.matches("ACME INC."))
	assert.True(t, ks.matches("Vice-President? no, Vice President of Sales"))
	assert.True(t, ks.matches("株式会社テスト"))
	assert.True(t, ks.matches("Foo S.A."))
	assert.False(t, ks.matches("Incoming"))
	assert.False(t, ks.matches("Vincent"))
}

func TestFallback_FullCard(t *testing.T) {
	text := "John Smith\nSenior Software Engineer\nACME Corp.\njohn.smith@acme.com\nwww.acme.com\nTel: +1 415 555 0100\nMobile: +1 415 555 0199\n123 Market St"
	rec := fallback(text)

	assert.Equal(t, "John Smith", rec.Value(FieldName))
	assert.Equal(t, "Senior Software Engineer", rec.Value(FieldTitle))
	assert.Equal(t, "ACME Corp.", rec.Value(FieldCompany))
	assert.Equal(t, "john.smith@acme.com", rec.Value(FieldEmail))
	assert.Equal(t, "www.acme.com", rec.Value(FieldWebsite))
	assert.Equal(t, "+1 415 555 0100", rec.Value(FieldPhone))
	assert.Equal(t, "+1 415 555 0199", rec.Value(FieldMobile))
	assert.Equal(t, "123 Market St", rec.Value(FieldOther))
	assert.Nil(t, rec.Address, "fallback never guesses an address")

	assert.Equal(t, SourceFallback, rec.Email.Source)
	assert.Equal(t, 1.0, rec.Email.Confidence)
	assert.Equal(t, 0.8, rec.Phone.Confidence)
	assert.Equal(t, 0.4, rec.Name.Confidence)
}

func TestFallback_OnlyEmail(t *testing.T) {
	rec := fallback("john@acme.com")
	require.NotNil(t, rec.Email)
	assert.Equal(t, "john@acme.com", rec.Email.Value)
	assert.Equal(t, 1.0, rec.Email.Confidence)
	assert.Equal(t, []string{FieldEmail}, rec.Extracted())
	assert.Nil(t, rec.Other)
}

func TestFallback_NothingMatches(t *testing.T) {
	rec := fallback("12 34\n---")
	assert.Empty(t, rec.Extracted())
	require.NotNil(t, rec.Other)
	assert.Equal(t, "12 34\n---", rec.Other.Value)
}

func TestApplyRules_FirstValueWins(t *testing.T) {
	rec := ApplyRules(DefaultRules(DefaultRulesConfig()), []string{"a@b.com", "c@d.com"})
	assert.Equal(t, "a@b.com", rec.Value(FieldEmail))
	assert.Nil(t, rec.Other, "both e-mail lines are claimed")
}

func TestRulesConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultRulesConfig().Validate())
	cfg := DefaultRulesConfig()
	cfg.MobileKeywords = nil
	assert.Error(t, cfg.Validate())
}
