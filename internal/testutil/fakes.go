package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/MeKo-Tech/cardex/internal/extract"
	"github.com/MeKo-Tech/cardex/internal/ocr"
)

// Layout used by Line: every rune is RuneWidth wide, words are separated by
// one rune width and every line is LineHeight tall.
const (
	RuneWidth  = 10.0
	LineHeight = 20.0
)

// Word builds a token with an axis-aligned box.
func Word(text string, x, y, w, h, conf float64) ocr.Token {
	return ocr.Token{Text: text, Box: ocr.QuadFromRect(x, y, x+w, y+h), Confidence: conf}
}

// Line lays words out left to right on the line starting at y.
func Line(y, conf float64, words ...string) []ocr.Token {
	out := make([]ocr.Token, 0, len(words))
	x := 0.0
	for _, w := range words {
		width := float64(utf8.RuneCountInString(w)) * RuneWidth
		out = append(out, Word(w, x, y, width, LineHeight, conf))
		x += width + RuneWidth
	}
	return out
}

// Card lays out one Line per entry, each entry split on spaces.
func Card(conf float64, lines ...[]string) []ocr.Token {
	var out []ocr.Token
	for i, words := range lines {
		out = append(out, Line(float64(i)*LineHeight*2, conf, words...)...)
	}
	return out
}

// Engine is a scripted OCR engine. It returns Tokens or Err after Delay,
// honoring ctx while it waits.
type Engine struct {
	Tokens []ocr.Token
	Err    error
	Delay  time.Duration

	calls atomic.Int32
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, _ ocr.Image) ([]ocr.Token, error) {
	e.calls.Add(1)
	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]ocr.Token, len(e.Tokens))
	copy(out, e.Tokens)
	return out, nil
}

// Calls returns how often Recognize ran.
func (e *Engine) Calls() int { return int(e.calls.Load()) }

// Engines maps language codes to scripted engines.
type Engines map[string]*Engine

// Factory returns an ocr.Factory that serves the scripted engines and fails
// for unknown codes.
func (m Engines) Factory() ocr.Factory {
	return func(code string) (ocr.Engine, error) {
		e, ok := m[code]
		if !ok {
			return nil, fmt.Errorf("no engine scripted for %q", code)
		}
		return e, nil
	}
}

// Profiles binds the engines for codes, in order.
func (m Engines) Profiles(codes ...string) []ocr.LanguageProfile {
	out := make([]ocr.LanguageProfile, 0, len(codes))
	for _, c := range codes {
		prof := ocr.LanguageProfile{Code: c}
		if e, ok := m[c]; ok {
			prof.Engine = e
		}
		out = append(out, prof)
	}
	return out
}

// AIReply is one scripted AI answer.
type AIReply struct {
	Text string
	Err  error
	// Hang blocks until the request context is done.
	Hang bool
}

// AI is a scripted structuring client. Each call consumes the next reply;
// the last reply repeats.
type AI struct {
	mu       sync.Mutex
	replies  []AIReply
	requests []extract.Request
}

// NewAI creates a scripted client.
func NewAI(replies ...AIReply) *AI { return &AI{replies: replies} }

// Complete implements extract.AIClient.
func (a *AI) Complete(ctx context.Context, req extract.Request) (string, error) {
	a.mu.Lock()
	n := len(a.requests)
	a.requests = append(a.requests, req)
	var r AIReply
	if len(a.replies) > 0 {
		r = a.replies[min(n, len(a.replies)-1)]
	}
	a.mu.Unlock()

	if r.Hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.Text, r.Err
}

// Calls returns the number of requests received.
func (a *AI) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Requests returns a copy of the received requests.
func (a *AI) Requests() []extract.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]extract.Request(nil), a.requests...)
}
