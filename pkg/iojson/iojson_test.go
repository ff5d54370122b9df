package iojson

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLine(&buf, map[string]int{"total": 35}))

	// One compact object per line, newline-terminated.
	assert.Equal(t, `{"total":35}`+"\n", buf.String())
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, map[string]int{"total": 35}))

	assert.True(t, strings.HasPrefix(buf.String(), "{\n"), "output = %s", buf.String())
	assert.Contains(t, buf.String(), `  "total": 35`)
}
