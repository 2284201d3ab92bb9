package testutil

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cardex/internal/extract"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestWriteCard(t *testing.T) {
	path := WriteCard(t, t.TempDir(), "nested/card.png", "John Smith")
	require.True(t, FileExists(path))

	img, err := png.Decode(bytes.NewReader(CardPNG(t, "x")))
	require.NoError(t, err)
	assert.Equal(t, CardWidth*3, img.Bounds().Dx())
}

func TestLine(t *testing.T) {
	toks := Line(40, 0.9, "John", "Smith")
	require.Len(t, toks, 2)
	minX, minY, maxX, maxY := toks[1].Box.Bounds()
	assert.Equal(t, 50.0, minX)
	assert.Equal(t, 100.0, maxX)
	assert.Equal(t, 40.0, minY)
	assert.Equal(t, 60.0, maxY)
	for _, tk := range toks {
		require.NoError(t, tk.Validate())
	}
}

func TestEngine(t *testing.T) {
	e := &Engine{Tokens: Line(0, 0.9, "a"), Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.Recognize(ctx, CardImage(t, "c.png"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, e.Calls())

	_, err = Engines{}.Factory()("en")
	assert.Error(t, err)
	profs := Engines{"en": e}.Profiles("en", "vi")
	assert.NotNil(t, profs[0].Engine)
	assert.Nil(t, profs[1].Engine)
}

func TestAI(t *testing.T) {
	boom := errors.New("boom")
	ai := NewAI(AIReply{Err: boom}, AIReply{Text: "{}"})
	_, err := ai.Complete(context.Background(), extract.Request{Text: "a"})
	require.ErrorIs(t, err, boom)
	for range 2 {
		out, err := ai.Complete(context.Background(), extract.Request{Text: "b"})
		require.NoError(t, err)
		assert.Equal(t, "{}", out)
	}
	assert.Equal(t, 3, ai.Calls())
	assert.Equal(t, "a", ai.Requests()[0].Text)
}
