package pkg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastLines(t *testing.T) {
	assert.Equal(t, "", lastLines([]string{}, 3))
	assert.Equal(t, "a", lastLines([]string{"a"}, 3))
	assert.Equal(t, "a\nb\nc", lastLines([]string{"a", "b", "c"}, 3))
	assert.Equal(t, "d\ne\nf", lastLines([]string{"a", "b", "c", "d", "e", "f"}, 3))
}

func TestLastLinesSkipsBlank(t *testing.T) {
	assert.Equal(t, "b\nc", LastLines("a\n\nb\n   \nc\n", 2))
}

func TestPerformCommand(t *testing.T) {
	output, err := PerformCommand(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", output)

	_, err = PerformCommand(context.Background(), "false")
	assert.Error(t, err)
}
