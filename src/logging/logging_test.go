package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/eduverse-labs/eduverse/src/oops"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPrettyWriter(t *testing.T) {
	t.Run("single line", func(t *testing.T) {
		var out bytes.Buffer
		logger := zerolog.New(NewPrettyZerologWriterTo(&out))
		logger.Info().Msg("uploading thumbnail")
		assert.Contains(t, out.String(), "INFO")
		assert.Contains(t, out.String(), "uploading thumbnail")
		assert.NotContains(t, out.String(), "Fields:")
	})
	t.Run("fields and errors", func(t *testing.T) {
		var out bytes.Buffer
		logger := zerolog.New(NewPrettyZerologWriterTo(&out))
		logger.Error().
			Stack().
			Err(oops.New(errors.New("timeout"), "failed to mint course")).
			Str("course", "Intro to Solidity").
			Msg("creation aborted")
		s := out.String()
		assert.Contains(t, s, "ERROR:")
		assert.Contains(t, s, "failed to mint course: timeout")
		assert.Contains(t, s, "course: \"Intro to Solidity\"")
		assert.Contains(t, s, "Stack trace:")
	})
	t.Run("job and module go in the header", func(t *testing.T) {
		var out bytes.Buffer
		logger := zerolog.New(NewPrettyZerologWriterTo(&out)).With().
			Str("job", "create").
			Str("module", "uploader").
			Logger()
		logger.Info().Msg("uploaded thumbnail")
		s := out.String()
		assert.Contains(t, s, "[create]")
		assert.Contains(t, s, "[uploader]")
		assert.NotContains(t, s, "Fields:")
	})
	t.Run("non-json passthrough", func(t *testing.T) {
		var out bytes.Buffer
		w := NewPrettyZerologWriterTo(&out)
		_, err := w.Write([]byte("plain text\n"))
		assert.Nil(t, err)
		assert.Equal(t, "plain text\n", out.String())
	})
}

func TestContextLogger(t *testing.T) {
	t.Run("falls back to global", func(t *testing.T) {
		assert.Equal(t, GlobalLogger(), ExtractLogger(context.Background()))
	})
	t.Run("module logger", func(t *testing.T) {
		var out bytes.Buffer
		base := zerolog.New(&out)
		ctx := AttachLoggerToContext(&base, context.Background())
		ctx, _ = WithModule(ctx, "uploader")
		ExtractLogger(ctx).Info().Msg("hello")
		assert.Contains(t, out.String(), `"module":"uploader"`)
	})
}
