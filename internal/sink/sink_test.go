package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/sawpanic/mdingest/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMsg() core.StreamMessage {
	return core.StreamMessage{
		Stream: "btcusdt@trade",
		Data:   core.CanonicalEvent{Type: core.EventTrade, Trade: &core.TradeEvent{Symbol: "BTCUSDT"}},
	}
}

func TestStdoutSink_PublishWritesOneJSONLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	require.NoError(t, s.Publish(sampleMsg()))
	require.NoError(t, s.Publish(sampleMsg()))

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var decoded core.StreamMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		assert.Equal(t, "btcusdt@trade", decoded.Stream)
	}
	assert.Equal(t, 2, lines)
}

func TestFileSink_PublishFailedAppendsNDJSON(t *testing.T) {
	path := t.TempDir() + "/dead_letter.ndjson"
	s, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, s.PublishFailed(sampleMsg(), 42, errors.New("downstream unavailable")))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry DeadLetterEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, uint64(42), entry.SeqNo)
	assert.Equal(t, "downstream unavailable", entry.Reason)
	assert.NotEmpty(t, entry.BatchID)
}

func TestFileSink_AppendsAcrossMultiplePublishes(t *testing.T) {
	path := t.TempDir() + "/dead_letter.ndjson"
	s, err := NewFileSink(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.PublishFailed(sampleMsg(), 1, errors.New("a")))
	require.NoError(t, s.PublishFailed(sampleMsg(), 2, errors.New("b")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Count(bytes.TrimSpace(data), []byte("\n")) + 1
	assert.Equal(t, 2, lines)
}
