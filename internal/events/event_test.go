package events

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelope(t *testing.T) {
	b, err := Marshal(LoadingSignal{State: "start"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, "signal", got["type"])
	require.Equal(t, "loading", got["event"])
	content := got["content"].(map[string]any)
	require.Equal(t, "start", content["state"])
}

func TestCompletedHasNilContent(t *testing.T) {
	b, err := Marshal(Completed{})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	_, hasContent := got["content"]
	require.False(t, hasContent, "completed event must omit content")
}

func TestWriterWritesNDJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(LoadingSignal{State: "start"}))
	require.NoError(t, w.Write(Completed{}))

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var v map[string]any
		require.NoError(t, json.Unmarshal(line, &v))
	}
}

type recordingSink struct{ got []Event }

func (r *recordingSink) Emit(e Event) { r.got = append(r.got, e) }

func TestWriterFansOutToSinks(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{}
	w := NewWriter(&buf, sink)

	require.NoError(t, w.Write(InfoMessage{Message: "hi"}))
	require.Len(t, sink.got, 1)
}
