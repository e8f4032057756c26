package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileLogger(t *testing.T) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	logger, err := NewFileLogger(&Config{
		Enabled: true,
		UserID:  "device-owner",
		Type:    FileAuditType,
		Options: map[string]interface{}{"file_path": path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	logger, err = NewLogger(&Config{Enabled: false, Type: FileAuditType})
	require.NoError(t, err)
	assert.IsType(t, &NoOpLogger{}, logger)

	_, err = NewLogger(&Config{Enabled: true, Type: "database"})
	assert.Error(t, err)

	_, err = NewLogger(&Config{Enabled: true, Type: FileAuditType})
	assert.Error(t, err, "file_path is required")
}

func TestFileLogger_WritesJSONLines(t *testing.T) {
	logger, path := newTestFileLogger(t)

	require.NoError(t, logger.Log(ActionUnlockPasscode, false, map[string]interface{}{
		"reason": ReasonInvalidCredential,
	}))
	require.NoError(t, logger.Log(ActionSecureWrite, true, map[string]interface{}{
		"service": "mail",
		"account": "alice",
		"size":    12,
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		events = append(events, e)
	}
	require.Len(t, events, 2)

	_, err = uuid.Parse(events[0].ID)
	assert.NoError(t, err, "event IDs are UUIDs")
	assert.Equal(t, "device-owner", events[0].UserID)
	assert.Equal(t, ReasonInvalidCredential, events[0].Reason)
	assert.False(t, events[0].Success)
	assert.Nil(t, events[0].Metadata)

	assert.Equal(t, "mail", events[1].Service)
	assert.Equal(t, "alice", events[1].Account)
	assert.EqualValues(t, 12, events[1].Metadata["size"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileLogger_Query(t *testing.T) {
	logger, _ := newTestFileLogger(t)

	require.NoError(t, logger.Log(ActionFinalize, true, nil))
	require.NoError(t, logger.Log(ActionUnlockPasscode, false, map[string]interface{}{"reason": ReasonInvalidCredential}))
	require.NoError(t, logger.Log(ActionUnlockPasscode, true, nil))
	require.NoError(t, logger.Log(ActionSecureRead, true, map[string]interface{}{"service": "mail"}))
	require.NoError(t, logger.Log(ActionShred, true, nil))

	t.Run("all from file", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, 5, result.TotalCount)
		assert.Equal(t, 5, result.Filtered)
	})

	t.Run("failures only", func(t *testing.T) {
		failed := false
		result, err := logger.Query(QueryOptions{Success: &failed})
		require.NoError(t, err)
		require.Len(t, result.Events, 1)
		assert.Equal(t, ActionUnlockPasscode, result.Events[0].Action)
	})

	t.Run("unlock events", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{UnlockEvents: true})
		require.NoError(t, err)
		assert.Len(t, result.Events, 3)
	})

	t.Run("service", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{Service: "mail"})
		require.NoError(t, err)
		require.Len(t, result.Events, 1)
		assert.Equal(t, ActionSecureRead, result.Events[0].Action)
	})

	t.Run("paging", func(t *testing.T) {
		result, err := logger.Query(QueryOptions{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, result.Events, 2)
		assert.True(t, result.HasMore)

		result, err = logger.Query(QueryOptions{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Len(t, result.Events, 1)
		assert.False(t, result.HasMore)
	})

	t.Run("from cache", func(t *testing.T) {
		since := logger.eventCache[0].Timestamp
		result, err := logger.Query(QueryOptions{Since: &since, Action: ActionShred})
		require.NoError(t, err)
		require.Len(t, result.Events, 1)
	})
}

func TestFileLogger_ReopensAfterClose(t *testing.T) {
	logger, _ := newTestFileLogger(t)

	require.NoError(t, logger.Log(ActionPurge, true, nil))
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Log(ActionPurge, true, nil))

	result, err := logger.Query(QueryOptions{Action: ActionPurge})
	require.NoError(t, err)
	assert.Len(t, result.Events, 2)
}

func TestFileLogger_Rotation(t *testing.T) {
	logger, path := newTestFileLogger(t)
	logger.fileOpts.MaxSize = 0 // rotate before every write

	require.NoError(t, logger.Log(ActionFinalize, true, nil))
	require.NoError(t, logger.Log(ActionPurge, true, nil))

	_, err := os.Stat(path + ".1")
	require.NoError(t, err)

	result, err := logger.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Filtered)
}

func TestNewEvent(t *testing.T) {
	e := newEvent("u", ActionSecureDelete, false, map[string]interface{}{
		"error":      "storage error",
		"session_id": "abc",
		"extra":      true,
	})

	assert.Equal(t, "storage error", e.Error)
	assert.Equal(t, "abc", e.SessionID)
	assert.Equal(t, map[string]interface{}{"extra": true}, e.Metadata)
	assert.WithinDuration(t, time.Now().UTC(), e.Timestamp, time.Minute)
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	assert.NoError(t, logger.Log(ActionFinalize, true, nil))
	result, err := logger.Query(QueryOptions{})
	assert.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.NoError(t, logger.Close())
}
