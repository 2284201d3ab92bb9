// Package support holds the godog step definitions for the pipeline
// feature tests. Engines and the AI model are scripted fakes, so the
// features run without Tesseract or a model server.
package support

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/cardex/internal/ocr"
	"github.com/MeKo-Tech/cardex/internal/pipeline"
	"github.com/MeKo-Tech/cardex/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	Engines testutil.Engines
	AI      *testutil.AI

	Result    *pipeline.Result
	LastError error
}

// NewTestContext creates an empty scenario state.
func NewTestContext() *TestContext {
	return &TestContext{Engines: testutil.Engines{}}
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// card is the image handed to the pipeline. The scripted engines ignore
// its content.
var card = ocr.Image{Data: []byte("card"), Format: "png", Name: "scans/card.png"}

// process builds a pipeline for langs and runs the card through it.
func (tc *TestContext) process(langs []string) error {
	b := pipeline.NewBuilder().
		WithLanguages(langs...).
		WithEngineFactory(tc.Engines.Factory()).
		WithLogger(quietLogger).
		WithAITimeout(50 * time.Millisecond).
		WithRetryBackoff(0)
	if tc.AI != nil {
		b = b.WithAIClient(tc.AI)
	}
	p, err := b.Build()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	tc.Result, tc.LastError = p.ProcessImage(context.Background(), card)
	return nil
}
