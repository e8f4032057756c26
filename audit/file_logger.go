package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var _ Logger = (*FileLogger)(nil)

// FileLogger appends events as JSON lines and keeps the most recent ones in
// memory for time-bounded queries.
type FileLogger struct {
	userID     string
	file       *os.File
	mu         sync.RWMutex
	eventCache []Event
	cacheSize  int
	fileOpts   FileOptions
}

type FileOptions struct {
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size,omitempty"`    // MB before the log is rotated
	MaxBackups int    `json:"max_backups,omitempty"` // rotated files kept
	CacheSize  int    `json:"cache_size,omitempty"`
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config *Config) (*FileLogger, error) {
	var fileOpts FileOptions
	if err := parseOptions(config.Options, &fileOpts); err != nil {
		return nil, fmt.Errorf("invalid file logger options: %w", err)
	}

	if fileOpts.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for file logger")
	}
	if fileOpts.MaxSize == 0 {
		fileOpts.MaxSize = 10
	}
	if fileOpts.MaxBackups == 0 {
		fileOpts.MaxBackups = 3
	}
	if fileOpts.CacheSize == 0 {
		fileOpts.CacheSize = 500
	}

	if err := os.MkdirAll(filepath.Dir(fileOpts.FilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := openLogFile(fileOpts.FilePath)
	if err != nil {
		return nil, err
	}

	return &FileLogger{
		userID:     config.UserID,
		file:       file,
		fileOpts:   fileOpts,
		eventCache: make([]Event, 0, fileOpts.CacheSize),
		cacheSize:  fileOpts.CacheSize,
	}, nil
}

// Log implements the Logger interface
func (fl *FileLogger) Log(action string, success bool, metadata map[string]interface{}) error {
	return fl.writeEvent(newEvent(fl.userID, action, success, metadata))
}

func (fl *FileLogger) writeEvent(event Event) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	// the logger outlives a closed Foundation when shared
	if fl.file == nil {
		file, err := openLogFile(fl.fileOpts.FilePath)
		if err != nil {
			return err
		}
		fl.file = file
	}

	if err := fl.rotateIfNeeded(); err != nil {
		return err
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize audit event: %w", err)
	}

	if _, err = fl.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	if err = fl.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	fl.eventCache = append(fl.eventCache, event)
	if len(fl.eventCache) > fl.cacheSize {
		fl.eventCache = fl.eventCache[len(fl.eventCache)-fl.cacheSize:]
	}

	return nil
}

// rotateIfNeeded shifts audit.log to audit.log.1 and so on once the current
// file passes MaxSize. Caller holds fl.mu.
func (fl *FileLogger) rotateIfNeeded() error {
	info, err := fl.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat audit log: %w", err)
	}
	if info.Size() < int64(fl.fileOpts.MaxSize)*1024*1024 {
		return nil
	}

	if err = fl.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}
	fl.file = nil

	path := fl.fileOpts.FilePath
	_ = os.Remove(fmt.Sprintf("%s.%d", path, fl.fileOpts.MaxBackups))
	for i := fl.fileOpts.MaxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if err = os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	fl.file, err = openLogFile(path)
	return err
}

// Query returns matching events, newest first.
func (fl *FileLogger) Query(options QueryOptions) (QueryResult, error) {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	if fl.cacheCovers(options) {
		return page(filterEvents(fl.eventCache, options), len(fl.eventCache), options), nil
	}

	files := []string{fl.fileOpts.FilePath}
	for i := 1; i <= fl.fileOpts.MaxBackups; i++ {
		files = append(files, fmt.Sprintf("%s.%d", fl.fileOpts.FilePath, i))
	}

	var all []Event
	total := 0
	for _, path := range files {
		events, count, err := readEvents(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return QueryResult{}, fmt.Errorf("failed to read events from %s: %w", path, err)
		}
		all = append(all, events...)
		total += count
	}

	return page(filterEvents(all, options), total, options), nil
}

// cacheCovers reports whether the in-memory cache holds every event the
// query could match.
func (fl *FileLogger) cacheCovers(options QueryOptions) bool {
	if len(fl.eventCache) == 0 || options.Since == nil {
		return false
	}
	return !options.Since.Before(fl.eventCache[0].Timestamp)
}

// Close implements the Logger interface
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.file != nil {
		err := fl.file.Close()
		fl.file = nil
		return err
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return file, nil
}

func readEvents(path string) ([]Event, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var events []Event
	total := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		total++

		var event Event
		if err = json.Unmarshal([]byte(line), &event); err != nil {
			// a torn trailing line after a crash
			continue
		}
		events = append(events, event)
	}

	if err = scanner.Err(); err != nil {
		return events, total, fmt.Errorf("error reading audit log file: %w", err)
	}
	return events, total, nil
}

func filterEvents(events []Event, options QueryOptions) []Event {
	var filtered []Event
	for _, event := range events {
		if matches(event, options) {
			filtered = append(filtered, event)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})
	return filtered
}

func page(filtered []Event, total int, options QueryOptions) QueryResult {
	start := options.Offset
	if start > len(filtered) {
		start = len(filtered)
	}

	end := len(filtered)
	if options.Limit > 0 && start+options.Limit < end {
		end = start + options.Limit
	}

	return QueryResult{
		Events:     filtered[start:end],
		TotalCount: total,
		Filtered:   len(filtered),
		HasMore:    end < len(filtered),
	}
}

func matches(event Event, options QueryOptions) bool {
	if options.UserID != "" && event.UserID != options.UserID {
		return false
	}
	if options.Since != nil && event.Timestamp.Before(*options.Since) {
		return false
	}
	if options.Until != nil && event.Timestamp.After(*options.Until) {
		return false
	}
	if options.Action != "" && event.Action != options.Action {
		return false
	}
	if options.Success != nil && event.Success != *options.Success {
		return false
	}
	if options.Service != "" && event.Service != options.Service {
		return false
	}
	if options.UnlockEvents && !isUnlockAction(event.Action) {
		return false
	}
	return true
}
