package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, pattern string) []LogRecord {
	t.Helper()
	files, err := filepath.Glob(pattern)
	require.NoError(t, err)

	var records []LogRecord
	for _, name := range files {
		f, err := os.Open(name)
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var rec LogRecord
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
			records = append(records, rec)
		}
		_ = f.Close()
	}
	return records
}

func TestNewFileSink_RequiresTemplate(t *testing.T) {
	_, err := NewFileSink(FileSinkConfig{})
	assert.Error(t, err)
}

func TestFileSink_WritesRecords(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "nested", "audit-%s.jsonl")

	sink, err := NewFileSink(FileSinkConfig{FileTemplate: template, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Regexp(t, `audit-\d{14}-0001\.jsonl$`, sink.CurrentFile())

	require.NoError(t, sink.Enqueue(testRecord("r1")))
	require.NoError(t, sink.Enqueue(testRecord("r2")))
	require.NoError(t, sink.Enqueue(nil))
	require.NoError(t, sink.Shutdown(context.Background()))

	records := readRecords(t, filepath.Join(dir, "nested", "audit-*.jsonl"))
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].RequestID)
	assert.Equal(t, "r2", records[1].RequestID)
	assert.Equal(t, "0.026", records[0].EstimatedCostUSD.String())
}

func TestFileSink_Rotation(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "audit-%s.jsonl")

	sink, err := NewFileSink(FileSinkConfig{
		FileTemplate:  template,
		MaxSize:       300,
		MaxFiles:      3,
		FlushInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, sink.Enqueue(testRecord(fmt.Sprintf("r%d", i))))
	}
	require.NoError(t, sink.Shutdown(context.Background()))

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(files), 3)
	assert.Greater(t, len(files), 1)

	records := readRecords(t, filepath.Join(dir, "audit-*.jsonl"))
	require.NotEmpty(t, records)
	assert.Equal(t, "r19", records[len(records)-1].RequestID, "newest records survive cleanup")
}

func TestFileSink_ShutdownIsIdempotent(t *testing.T) {
	sink, err := NewFileSink(FileSinkConfig{FileTemplate: filepath.Join(t.TempDir(), "a-%s.jsonl")})
	require.NoError(t, err)

	require.NoError(t, sink.Shutdown(context.Background()))
	require.NoError(t, sink.Shutdown(context.Background()))
	assert.ErrorIs(t, sink.Enqueue(testRecord("late")), ErrSinkClosed)
}

func TestFileSink_FullBufferDrops(t *testing.T) {
	sink := &FileSink{
		recCh:  make(chan *LogRecord, 1),
		doneCh: make(chan struct{}),
	}

	require.NoError(t, sink.Enqueue(testRecord("r1")))
	assert.ErrorIs(t, sink.Enqueue(testRecord("r2")), ErrSinkFull)
}

func TestFileSink_ConcurrentEnqueue(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{FileTemplate: filepath.Join(dir, "c-%s.jsonl"), BufferSize: 1000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = sink.Enqueue(testRecord(fmt.Sprintf("g%d-%d", g, i)))
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, sink.Shutdown(context.Background()))

	assert.Len(t, readRecords(t, filepath.Join(dir, "c-*.jsonl")), 200)
}
