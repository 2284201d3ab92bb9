package fusion

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Line is a run of tokens sharing a vertical band, ordered left to right.
type Line struct {
	Tokens []ocr.Token `json:"tokens"`
}

// Text joins the line's tokens with single spaces.
func (l Line) Text() string {
	parts := make([]string, len(l.Tokens))
	for i, t := range l.Tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}

// Provenance describes where a surviving token came from and where it ended
// up in the fused text.
type Provenance struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence float64  `json:"confidence"`
	Line       int      `json:"line"`
	Position   int      `json:"position"`
	MergedFrom []string `json:"merged_from,omitempty"`
}

// Stats counts tokens through the fusion barrier.
type Stats struct {
	Input     int `json:"input"`
	Survivors int `json:"survivors"`
	Discarded int `json:"discarded"`
}

// Result is the fused, deduplicated reading-order text.
type Result struct {
	Lines            []Line       `json:"lines"`
	Text             string       `json:"text"`
	Provenance       []Provenance `json:"provenance"`
	Stats            Stats        `json:"stats"`
	DominantLanguage string       `json:"dominant_language,omitempty"`
}

// Tokens returns the surviving tokens in reading order.
func (r Result) Tokens() []ocr.Token {
	out := make([]ocr.Token, 0, r.Stats.Survivors)
	for _, l := range r.Lines {
		out = append(out, l.Tokens...)
	}
	return out
}

// Empty reports whether no token survived.
func (r Result) Empty() bool { return len(r.Lines) == 0 }

type candidate struct {
	tok    ocr.Token
	rect   Rect
	runes  int
	prio   int
	merged map[string]bool
}

// Fuse merges per-language token lists into one deduplicated, reading-ordered
// result. Tokens overlapping above cfg.IoUThreshold are one detection; the
// most confident (then longest, then highest-priority language) survives. The
// output depends only on the multiset of input tokens, and fusing the
// survivors again yields the same survivors.
func Fuse(passes [][]ocr.Token, cfg Config) Result {
	prio := cfg.priorityIndex()

	var cands []*candidate
	for _, pass := range passes {
		for _, t := range pass {
			cands = append(cands, &candidate{
				tok:   t,
				rect:  RectFromQuad(t.Box),
				runes: utf8.RuneCountInString(t.Text),
				prio:  prio(t.Language),
			})
		}
	}
	if len(cands) == 0 {
		return Result{Lines: []Line{}, Provenance: []Provenance{}}
	}

	survivors := suppress(cands, cfg.IoUThreshold)
	lines := groupLines(survivors, cfg.LineTolerance)

	res := Result{
		Lines:      make([]Line, len(lines)),
		Provenance: make([]Provenance, 0, len(survivors)),
		Stats: Stats{
			Input:     len(cands),
			Survivors: len(survivors),
			Discarded: len(cands) - len(survivors),
		},
	}
	texts := make([]string, len(lines))
	for li, line := range lines {
		toks := make([]ocr.Token, len(line))
		for pi, c := range line {
			toks[pi] = c.tok
			res.Provenance = append(res.Provenance, Provenance{
				Text:       c.tok.Text,
				Language:   c.tok.Language,
				Confidence: c.tok.Confidence,
				Line:       li,
				Position:   pi,
				MergedFrom: sortedKeys(c.merged),
			})
		}
		res.Lines[li] = Line{Tokens: toks}
		texts[li] = res.Lines[li].Text()
	}
	res.Text = strings.Join(texts, "\n")
	res.DominantLanguage = dominantLanguage(survivors, prio)
	return res
}

// suppress is greedy non-maximum suppression over every candidate regardless
// of language. Candidates are visited in survivor-preference order; each kept
// candidate absorbs the remaining candidates it overlaps.
func suppress(cands []*candidate, threshold float64) []*candidate {
	sort.Slice(cands, func(i, j int) bool { return prefer(cands[i], cands[j]) })

	suppressed := make([]bool, len(cands))
	kept := make([]*candidate, 0, len(cands))
	for a := range cands {
		if suppressed[a] {
			continue
		}
		kept = append(kept, cands[a])
		for b := a + 1; b < len(cands); b++ {
			if suppressed[b] {
				continue
			}
			if IoU(cands[a].rect, cands[b].rect) > threshold {
				suppressed[b] = true
				if cands[a].merged == nil {
					cands[a].merged = make(map[string]bool)
				}
				cands[a].merged[cands[b].tok.Language] = true
			}
		}
	}
	return kept
}

// prefer reports whether a should be chosen over b as a cluster survivor.
// The order is total over distinguishable tokens.
func prefer(a, b *candidate) bool {
	if a.tok.Confidence != b.tok.Confidence {
		return a.tok.Confidence > b.tok.Confidence
	}
	if a.runes != b.runes {
		return a.runes > b.runes
	}
	if a.prio != b.prio {
		return a.prio < b.prio
	}
	if a.tok.Language != b.tok.Language {
		return a.tok.Language < b.tok.Language
	}
	return geometryLess(a, b)
}

// geometryLess orders by position, then by the raw quad, then by text.
func geometryLess(a, b *candidate) bool {
	ka := [4]float64{a.rect.MinY, a.rect.MinX, a.rect.MaxY, a.rect.MaxX}
	kb := [4]float64{b.rect.MinY, b.rect.MinX, b.rect.MaxY, b.rect.MaxX}
	for i := range ka {
		if ka[i] != kb[i] {
			return ka[i] < kb[i]
		}
	}
	for i := range a.tok.Box {
		pa, pb := a.tok.Box[i], b.tok.Box[i]
		if pa.X != pb.X {
			return pa.X < pb.X
		}
		if pa.Y != pb.Y {
			return pa.Y < pb.Y
		}
	}
	return a.tok.Text < b.tok.Text
}

type lineAcc struct {
	members []*candidate
	sumCY   float64
}

func (l *lineAcc) meanCY() float64 { return l.sumCY / float64(len(l.members)) }

// groupLines clusters survivors by vertical centre. A token joins the current
// line when its centre lies within tol x its own height of the line's mean
// centre; otherwise it starts a new line.
func groupLines(cands []*candidate, tol float64) [][]*candidate {
	order := make([]*candidate, len(cands))
	copy(order, cands)
	sort.Slice(order, func(i, j int) bool {
		ci, cj := order[i].rect.CenterY(), order[j].rect.CenterY()
		if ci != cj {
			return ci < cj
		}
		if order[i].rect.MinX != order[j].rect.MinX {
			return order[i].rect.MinX < order[j].rect.MinX
		}
		return prefer(order[i], order[j])
	})

	var lines []*lineAcc
	var cur *lineAcc
	for _, c := range order {
		cy := c.rect.CenterY()
		if cur != nil && math.Abs(cy-cur.meanCY()) <= tol*c.rect.Height() {
			cur.members = append(cur.members, c)
			cur.sumCY += cy
			continue
		}
		cur = &lineAcc{members: []*candidate{c}, sumCY: cy}
		lines = append(lines, cur)
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].meanCY() < lines[j].meanCY() })

	out := make([][]*candidate, len(lines))
	for i, l := range lines {
		m := l.members
		sort.Slice(m, func(a, b int) bool {
			if m[a].rect.MinX != m[b].rect.MinX {
				return m[a].rect.MinX < m[b].rect.MinX
			}
			return geometryLess(m[a], m[b])
		})
		out[i] = m
	}
	return out
}

// dominantLanguage is the language contributing the most surviving text.
func dominantLanguage(cands []*candidate, prio func(string) int) string {
	weight := make(map[string]int)
	for _, c := range cands {
		weight[c.tok.Language] += c.runes
	}
	best, bestW := "", -1
	for lang, w := range weight {
		switch {
		case w > bestW:
		case w == bestW && prio(lang) < prio(best):
		case w == bestW && prio(lang) == prio(best) && lang < best:
		default:
			continue
		}
		best, bestW = lang, w
	}
	return best
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
