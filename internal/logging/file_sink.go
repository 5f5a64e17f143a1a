package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tool_gateway/internal/utils"
)

// FileSinkConfig configures the rotating JSON Lines sink
type FileSinkConfig struct {
	FileTemplate  string        // e.g. "/var/log/tool-gateway/audit-%s.jsonl"
	MaxSize       int64         // bytes before rotation
	MaxFiles      int           // rotated files to keep
	BufferSize    int           // queued records before Enqueue drops
	FlushInterval time.Duration // periodic flush of the write buffer
}

// DefaultFileSinkConfig returns defaults for a template
func DefaultFileSinkConfig(fileTemplate string) FileSinkConfig {
	return FileSinkConfig{
		FileTemplate:  fileTemplate,
		MaxSize:       64 << 20,
		MaxFiles:      10,
		BufferSize:    1000,
		FlushInterval: time.Second,
	}
}

// FileSink writes audit records to size-rotated JSON Lines files
type FileSink struct {
	cfg FileSinkConfig

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	sequence    int

	recCh  chan *LogRecord
	doneCh chan struct{}
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	logger *utils.Logger
}

// NewFileSink opens the first file and starts the writer goroutine
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if cfg.FileTemplate == "" {
		return nil, fmt.Errorf("file template is required")
	}
	defaults := DefaultFileSinkConfig(cfg.FileTemplate)
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaults.MaxSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaults.MaxFiles
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	s := &FileSink{
		cfg:    cfg,
		recCh:  make(chan *LogRecord, cfg.BufferSize),
		doneCh: make(chan struct{}),
		logger: utils.NewLogger("audit-file"),
	}
	if err := s.openFile(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// newFileName stamps the template with the current time. The sequence
// suffix keeps names unique when several rotations happen within a second.
func (s *FileSink) newFileName() string {
	s.sequence++
	stamp := fmt.Sprintf("%s-%04d", time.Now().UTC().Format("20060102150405"), s.sequence)
	return fmt.Sprintf(s.cfg.FileTemplate, stamp)
}

func (s *FileSink) openFile() error {
	name := s.newFileName()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	fi, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}

	s.currentFile = name
	s.currentSize = fi.Size()
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded must be called with mu held
func (s *FileSink) rotateIfNeeded(n int) error {
	if s.currentSize == 0 || s.currentSize+int64(n) <= s.cfg.MaxSize {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := s.openFile(); err != nil {
		return err
	}
	s.cleanupOldFiles()
	return nil
}

// cleanupOldFiles removes the oldest files beyond MaxFiles. Names sort by
// their timestamp, so lexical order is age order.
func (s *FileSink) cleanupOldFiles() {
	matches, err := filepath.Glob(fmt.Sprintf(s.cfg.FileTemplate, "*"))
	if err != nil {
		return
	}
	sort.Strings(matches)
	for i := 0; i < len(matches)-s.cfg.MaxFiles; i++ {
		if matches[i] == s.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
}

func (s *FileSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.recCh:
			s.write(rec)
		case <-ticker.C:
			s.mu.Lock()
			_ = s.writer.Flush()
			s.mu.Unlock()
		case <-s.doneCh:
			for {
				select {
				case rec := <-s.recCh:
					s.write(rec)
				default:
					s.mu.Lock()
					_ = s.writer.Flush()
					_ = s.file.Close()
					s.mu.Unlock()
					return
				}
			}
		}
	}
}

func (s *FileSink) write(rec *LogRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("Failed to encode audit record", "request_id", rec.RequestID, "error", err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateIfNeeded(len(data)); err != nil {
		s.logger.Error("Failed to rotate audit file", "file", s.currentFile, "error", err)
	}
	n, err := s.writer.Write(data)
	s.currentSize += int64(n)
	if err != nil {
		s.logger.Error("Failed to write audit record", "request_id", rec.RequestID, "error", err)
	}
}

// Enqueue queues a record; a full buffer drops it and returns ErrSinkFull
func (s *FileSink) Enqueue(rec *LogRecord) error {
	if rec == nil {
		return nil
	}
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.recCh <- rec:
		return nil
	default:
		return ErrSinkFull
	}
}

// CurrentFile returns the active file name
func (s *FileSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile
}

// Shutdown drains queued records, flushes, and closes the file
func (s *FileSink) Shutdown(ctx context.Context) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.doneCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
