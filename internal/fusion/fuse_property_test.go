package fusion

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/MeKo-Tech/cardex/internal/ocr"
)

var propLanguages = []string{"en", "jp", "vi"}

// genToken generates a token on a small canvas so overlaps are frequent.
func genToken() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 150),
		gen.Float64Range(0, 150),
		gen.Float64Range(5, 60),
		gen.Float64Range(5, 25),
		gen.Float64Range(0.3, 1.0),
		gen.IntRange(0, len(propLanguages)-1),
		gen.AlphaString(),
	).Map(func(vals []interface{}) ocr.Token {
		x, ok := vals[0].(float64)
		if !ok {
			panic("expected float64")
		}
		y, ok := vals[1].(float64)
		if !ok {
			panic("expected float64")
		}
		w, ok := vals[2].(float64)
		if !ok {
			panic("expected float64")
		}
		h, ok := vals[3].(float64)
		if !ok {
			panic("expected float64")
		}
		conf, ok := vals[4].(float64)
		if !ok {
			panic("expected float64")
		}
		li, ok := vals[5].(int)
		if !ok {
			panic("expected int")
		}
		text, ok := vals[6].(string)
		if !ok {
			panic("expected string")
		}
		if text == "" {
			text = "x"
		}
		return ocr.Token{
			Text:       text,
			Box:        ocr.QuadFromRect(x, y, x+w, y+h),
			Confidence: conf,
			Language:   propLanguages[li],
		}
	})
}

func genPasses() gopter.Gen {
	return gen.SliceOfN(3, gen.SliceOfN(12, genToken()))
}

func TestFuse_NoRetainedOverlap(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no two survivors overlap above the IoU threshold", prop.ForAll(
		func(passes [][]ocr.Token, threshold float64) bool {
			cfg := DefaultConfig()
			cfg.IoUThreshold = threshold
			toks := Fuse(passes, cfg).Tokens()
			for i := range toks {
				for j := i + 1; j < len(toks); j++ {
					if IoU(RectFromQuad(toks[i].Box), RectFromQuad(toks[j].Box)) > threshold {
						return false
					}
				}
			}
			return true
		},
		genPasses(),
		gen.Float64Range(0.1, 0.9),
	))

	properties.TestingRun(t)
}

func TestFuse_Deterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("output depends only on the token multiset", prop.ForAll(
		func(passes [][]ocr.Token, seed int64) bool {
			want := Fuse(passes, DefaultConfig())

			var flat []ocr.Token
			for _, p := range passes {
				flat = append(flat, p...)
			}
			rng := rand.New(rand.NewSource(seed))
			rng.Shuffle(len(flat), func(i, j int) { flat[i], flat[j] = flat[j], flat[i] })
			// regroup into a different pass split
			split := len(flat) / 2
			got := Fuse([][]ocr.Token{flat[split:], flat[:split]}, DefaultConfig())

			return want.Text == got.Text &&
				reflect.DeepEqual(want.Tokens(), got.Tokens()) &&
				want.Stats == got.Stats
		},
		genPasses(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestFuse_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("fusing survivors again yields the same survivors", prop.ForAll(
		func(passes [][]ocr.Token) bool {
			first := Fuse(passes, DefaultConfig())
			second := Fuse([][]ocr.Token{first.Tokens()}, DefaultConfig())
			return second.Stats.Discarded == 0 &&
				second.Text == first.Text &&
				reflect.DeepEqual(first.Tokens(), second.Tokens())
		},
		genPasses(),
	))

	properties.TestingRun(t)
}

func TestFuse_StatsBalance(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("survivors plus discarded equals input", prop.ForAll(
		func(passes [][]ocr.Token) bool {
			res := Fuse(passes, DefaultConfig())
			n := 0
			for _, p := range passes {
				n += len(p)
			}
			return res.Stats.Input == n &&
				res.Stats.Survivors+res.Stats.Discarded == n &&
				len(res.Provenance) == res.Stats.Survivors
		},
		genPasses(),
	))

	properties.TestingRun(t)
}
