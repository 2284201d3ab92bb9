package extract

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// RulesConfig holds the keyword lists used by the fallback rules.
type RulesConfig struct {
	TitleKeywords   []string `json:"title_keywords" yaml:"title_keywords"`
	CompanySuffixes []string `json:"company_suffixes" yaml:"company_suffixes"`
	MobileKeywords  []string `json:"mobile_keywords" yaml:"mobile_keywords"`
}

// DefaultRulesConfig returns keyword lists covering English, Japanese and
// Vietnamese cards.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		TitleKeywords: []string{
			"ceo", "cto", "cfo", "coo", "cio", "president", "vice president", "vp",
			"director", "manager", "engineer", "developer", "designer", "consultant",
			"founder", "co-founder", "partner", "head", "lead", "officer", "chairman",
			"architect", "analyst", "specialist", "executive", "professor", "lecturer",
			"researcher", "assistant", "associate", "intern", "representative",
			"社長", "部長", "課長", "係長", "取締役", "代表", "主任",
			"giám đốc", "trưởng phòng", "phó", "chuyên viên", "kỹ sư",
		},
		CompanySuffixes: []string{
			"inc", "llc", "ltd", "limited", "corp", "corporation", "co", "company",
			"gmbh", "ag", "plc", "s.a.", "pte", "pty", "jsc", "group", "holdings",
			"株式会社", "有限会社", "合同会社", "(株)",
			"công ty", "tnhh", "cổ phần",
		},
		MobileKeywords: []string{
			"mobile", "mob", "cell", "cellphone", "handy", "m", "hp",
			"携帯", "di động", "dđ",
		},
	}
}

// Validate rejects empty keyword lists.
func (c RulesConfig) Validate() error {
	if len(c.TitleKeywords) == 0 {
		return errors.New("title_keywords must not be empty")
	}
	if len(c.CompanySuffixes) == 0 {
		return errors.New("company_suffixes must not be empty")
	}
	if len(c.MobileKeywords) == 0 {
		return errors.New("mobile_keywords must not be empty")
	}
	return nil
}

// Fallback rule confidences.
const (
	ConfidencePattern = 1.0
	ConfidencePhone   = 0.8
	ConfidenceKeyword = 0.4
	ConfidenceOther   = 0.2
)

// Match is one value found by a rule on one line.
type Match struct {
	Field      string
	Value      string
	Line       int
	Confidence float64
}

// Rule is a named pure function over the card lines. claimed marks lines
// already consumed by earlier rules; a rule must not modify it.
type Rule struct {
	Name  string
	Apply func(lines []string, claimed []bool) []Match
	// Claims reports whether lines with a match are consumed for later rules.
	Claims bool
}

var (
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s,;<>"']+`)
	domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+(?:com|net|org|io|co|biz|info|dev|app|jp|vn|de|uk|fr|us)(?:\.[a-z]{2})?(?:/[^\s,;<>"']*)?\b`)
	phonePattern  = regexp.MustCompile(`\+?\(?\d[\d\s().\-/]{5,}\d`)
	numberBreak   = regexp.MustCompile(`\s*/\s*|\s{2,}`)
	numberSpace   = regexp.MustCompile(`\s+`)
	letterPattern = regexp.MustCompile(`\pL`)
	trailingPunct = ".,;:)]}"
	faxKeywords   = []string{"fax", "fx", "ファックス", "ファクス"}
)

// DefaultRules returns the fallback rules in application order.
func DefaultRules(cfg RulesConfig) []Rule {
	title := newKeywordSet(cfg.TitleKeywords)
	company := newKeywordSet(cfg.CompanySuffixes)
	mobile := newKeywordSet(cfg.MobileKeywords)
	return []Rule{
		{Name: "email", Apply: EmailRule, Claims: true},
		{Name: "website", Apply: WebsiteRule, Claims: true},
		{Name: "phone", Apply: PhoneRule(mobile), Claims: true},
		{Name: "name", Apply: NameRule(title, company), Claims: true},
		{Name: "title", Apply: KeywordRule(FieldTitle, title), Claims: true},
		{Name: "company", Apply: KeywordRule(FieldCompany, company), Claims: true},
		{Name: "other", Apply: OtherRule},
	}
}

// EmailRule finds e-mail addresses.
func EmailRule(lines []string, claimed []bool) []Match {
	var out []Match
	for i, l := range lines {
		for _, m := range emailPattern.FindAllString(l, -1) {
			out = append(out, Match{Field: FieldEmail, Value: m, Line: i, Confidence: ConfidencePattern})
		}
	}
	return out
}

// WebsiteRule finds URLs and bare domains that are not part of an e-mail
// address.
func WebsiteRule(lines []string, claimed []bool) []Match {
	var out []Match
	for i, l := range lines {
		emails := emailPattern.FindAllStringIndex(l, -1)
		for _, pat := range []*regexp.Regexp{urlPattern, domainPattern} {
			for _, loc := range pat.FindAllStringIndex(l, -1) {
				if overlapsAny(loc, emails) {
					continue
				}
				v := strings.TrimRight(l[loc[0]:loc[1]], trailingPunct)
				if v == "" {
					continue
				}
				out = append(out, Match{Field: FieldWebsite, Value: v, Line: i, Confidence: ConfidencePattern})
			}
		}
	}
	return out
}

// PhoneRule finds numbers with 7 to 15 digits. A number is a mobile when a
// mobile keyword labels it: in the text since the previous number, or right
// after it when nothing labels it before. Fax-labelled numbers are skipped.
func PhoneRule(mobile keywordSet) func(lines []string, claimed []bool) []Match {
	fax := newKeywordSet(faxKeywords)
	return func(lines []string, claimed []bool) []Match {
		var out []Match
		for i, l := range lines {
			emails := emailPattern.FindAllStringIndex(l, -1)
			locs := phoneSpans(l)
			prevEnd := 0
			for k, loc := range locs {
				nextStart := len(l)
				if k+1 < len(locs) {
					nextStart = locs[k+1][0]
				}
				before := l[prevEnd:loc[0]]
				after := l[loc[1]:nextStart]
				prevEnd = loc[1]

				if overlapsAny(loc, emails) {
					continue
				}
				raw := strings.TrimSpace(l[loc[0]:loc[1]])
				if n := countDigits(raw); n < 7 || n > maxPhoneDigits {
					continue
				}
				if fax.matches(before) {
					continue
				}
				field := FieldPhone
				if mobile.matches(before) || (!letterPattern.MatchString(before) && mobile.matches(after)) {
					field = FieldMobile
				}
				out = append(out, Match{Field: field, Value: raw, Line: i, Confidence: ConfidencePhone})
			}
		}
		return out
	}
}

// NameRule picks the first unclaimed line that looks like a personal name:
// no digits, one to five capitalized words and no title or company keyword.
func NameRule(title, company keywordSet) func(lines []string, claimed []bool) []Match {
	return func(lines []string, claimed []bool) []Match {
		for i, l := range lines {
			if claimed[i] || !looksLikeName(l) {
				continue
			}
			if title.matches(l) || company.matches(l) {
				continue
			}
			return []Match{{Field: FieldName, Value: strings.TrimSpace(l), Line: i, Confidence: ConfidenceKeyword}}
		}
		return nil
	}
}

// KeywordRule picks the first unclaimed line containing a keyword.
func KeywordRule(field string, kw keywordSet) func(lines []string, claimed []bool) []Match {
	return func(lines []string, claimed []bool) []Match {
		for i, l := range lines {
			if claimed[i] || !kw.matches(l) {
				continue
			}
			return []Match{{Field: field, Value: strings.TrimSpace(l), Line: i, Confidence: ConfidenceKeyword}}
		}
		return nil
	}
}

// OtherRule joins every remaining unclaimed line.
func OtherRule(lines []string, claimed []bool) []Match {
	var rest []string
	for i, l := range lines {
		if claimed[i] {
			continue
		}
		if s := strings.TrimSpace(l); s != "" {
			rest = append(rest, s)
		}
	}
	if len(rest) == 0 {
		return nil
	}
	return []Match{{Field: FieldOther, Value: strings.Join(rest, "\n"), Line: -1, Confidence: ConfidenceOther}}
}

func looksLikeName(line string) bool {
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 5 {
		return false
	}
	for _, w := range words {
		first := true
		for _, r := range w {
			if unicode.IsDigit(r) {
				return false
			}
			if first {
				// Scripts without case (CJK) count as capitalized.
				if !unicode.IsLetter(r) || unicode.IsLower(r) {
					return false
				}
				first = false
			}
		}
	}
	return true
}

// maxPhoneDigits is the E.164 limit.
const maxPhoneDigits = 15

// phoneSpans returns the phone candidates in l. A phonePattern match with
// more digits than any number can have is several numbers run together: it
// is cut at slashes and wide gaps first, and pieces still too long are cut
// at single spaces, keeping adjacent groups together while they fit.
func phoneSpans(l string) [][]int {
	var out [][]int
	for _, loc := range phonePattern.FindAllStringIndex(l, -1) {
		if countDigits(l[loc[0]:loc[1]]) <= maxPhoneDigits {
			out = append(out, loc)
			continue
		}
		for _, piece := range splitSpan(l, loc, numberBreak) {
			if countDigits(l[piece[0]:piece[1]]) <= maxPhoneDigits {
				out = append(out, piece)
				continue
			}
			out = append(out, groupSpans(l, splitSpan(l, piece, numberSpace))...)
		}
	}
	return out
}

// splitSpan cuts loc at every match of sep, dropping empty pieces.
func splitSpan(l string, loc []int, sep *regexp.Regexp) [][]int {
	var out [][]int
	start := loc[0]
	for _, m := range sep.FindAllStringIndex(l[loc[0]:loc[1]], -1) {
		if end := loc[0] + m[0]; end > start {
			out = append(out, []int{start, end})
		}
		start = loc[0] + m[1]
	}
	if start < loc[1] {
		out = append(out, []int{start, loc[1]})
	}
	return out
}

// groupSpans joins consecutive pieces while their digits fit in one number.
func groupSpans(l string, pieces [][]int) [][]int {
	var out [][]int
	var cur []int
	digits := 0
	for _, p := range pieces {
		n := countDigits(l[p[0]:p[1]])
		if cur != nil && digits+n <= maxPhoneDigits {
			cur[1] = p[1]
			digits += n
			continue
		}
		if cur != nil {
			out = append(out, cur)
		}
		cur, digits = []int{p[0], p[1]}, n
	}
	if cur != nil {
		out = append(out, cur)
	}
	return out
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func overlapsAny(loc []int, spans [][]int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

// keywordSet matches ASCII keywords on word boundaries (case-insensitive,
// dots ignored) and other keywords as substrings.
type keywordSet struct {
	words      []string
	substrings []string
}

func newKeywordSet(keywords []string) keywordSet {
	var ks keywordSet
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if isASCII(k) {
			if norm := normalizeWords(k); norm != "" {
				ks.words = append(ks.words, norm)
			}
			continue
		}
		ks.substrings = append(ks.substrings, k)
	}
	return ks
}

func (ks keywordSet) matches(s string) bool {
	lower := strings.ToLower(s)
	for _, sub := range ks.substrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	if len(ks.words) == 0 {
		return false
	}
	padded := " " + normalizeWords(lower) + " "
	for _, w := range ks.words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// normalizeWords lower-cases s, drops dots and splits on anything that is not
// a letter, digit or hyphen.
func normalizeWords(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), ".", "")
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return strings.Join(words, " ")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
