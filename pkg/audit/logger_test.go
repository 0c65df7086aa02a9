package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRecordWritesOneJSONLinePerCall(t *testing.T) {
	var buf bytes.Buffer
	logger := New(NewWriterSink(&buf))

	require.NoError(t, logger.Record(map[string]string{"event": "first"}))
	require.NoError(t, logger.Record(map[string]string{"event": "second"}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "first", first["event"])
}

func TestFileSinkAppendsAcrossLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	sink1, f1, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, New(sink1).Record(map[string]string{"event": "one"}))
	require.NoError(t, f1.Close())

	sink2, f2, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, New(sink2).Record(map[string]string{"event": "two"}))
	require.NoError(t, f2.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	require.Len(t, lines, 2)
}

type failingSink struct{}

func (failingSink) Write(line []byte) error { return errors.New("sink unavailable") }

func TestMultiSinkWritesToAllAndReturnsFirstError(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiSink(failingSink{}, NewWriterSink(&buf))

	err := multi.Write([]byte(`{"event":"fanout"}`))
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "fanout")
}
