package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/eduverse-labs/eduverse/src/creation"
	"github.com/eduverse-labs/eduverse/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPrompter(t *testing.T) {
	section := models.PendingSection{Title: "Deploying"}
	ctx := context.Background()

	t.Run("confirm answers", func(t *testing.T) {
		var out bytes.Buffer
		p := NewTerminalPrompter(strings.NewReader("\ny\ns\nno\n"), &out)
		expected := []creation.Decision{creation.Continue, creation.Continue, creation.SkipRemaining, creation.SkipRemaining}
		for _, want := range expected {
			got, err := p.ConfirmNext(ctx, section, 1, 3)
			require.Nil(t, err)
			assert.Equal(t, want, got)
		}
		assert.Contains(t, out.String(), `Add section 2 of 3, "Deploying"?`)
	})
	t.Run("rejection defaults to stop", func(t *testing.T) {
		var out bytes.Buffer
		p := NewTerminalPrompter(strings.NewReader("\nyes\n"), &out)

		got, err := p.AfterRejection(ctx, section, errors.New("user rejected"))
		require.Nil(t, err)
		assert.Equal(t, creation.Stop, got)

		got, err = p.AfterRejection(ctx, section, errors.New("user rejected"))
		require.Nil(t, err)
		assert.Equal(t, creation.Continue, got)
		assert.Contains(t, out.String(), "rejected in the wallet")
	})
	t.Run("end of input", func(t *testing.T) {
		p := NewTerminalPrompter(strings.NewReader(""), &bytes.Buffer{})

		got, err := p.ConfirmNext(ctx, section, 1, 2)
		require.Nil(t, err)
		assert.Equal(t, creation.SkipRemaining, got)

		got, err = p.AfterRejection(ctx, section, errors.New("user rejected"))
		require.Nil(t, err)
		assert.Equal(t, creation.Stop, got)
	})
	t.Run("last line without newline", func(t *testing.T) {
		p := NewTerminalPrompter(strings.NewReader("y"), &bytes.Buffer{})
		got, err := p.AfterRejection(ctx, section, errors.New("user rejected"))
		require.Nil(t, err)
		assert.Equal(t, creation.Continue, got)
	})
	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		p := NewTerminalPrompter(strings.NewReader("y\n"), &bytes.Buffer{})
		_, err := p.ConfirmNext(canceled, section, 1, 2)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
