// Package audit records security-relevant events: finalization of unlock
// factors, unlock attempts, purges, secure keychain writes and shredding.
//
// Events never carry secret material. Metadata keys "error", "service",
// "account" and "reason" are promoted to first-class event fields.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config defines audit logging configuration
type Config struct {
	Enabled  bool                   `json:"enabled" yaml:"enabled"`
	UserID   string                 `json:"user_id" yaml:"user_id"`
	Type     ConfigType             `json:"type" yaml:"type"`       // "file", "syslog" or empty
	Options  map[string]interface{} `json:"options" yaml:"options"` // provider specific
	LogLevel string                 `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Actions recorded by the crypto manager, the keychain and the shredder.
const (
	ActionFinalize         = "CREDENTIALS_FINALIZE"
	ActionUnlockPasscode   = "UNLOCK_PASSCODE"
	ActionUnlockAnswers    = "UNLOCK_SECURITY_ANSWERS"
	ActionPurge            = "MANAGER_PURGE"
	ActionUpdatePasscode   = "PASSCODE_UPDATE"
	ActionUpdateSecurityQA = "SECURITY_QA_UPDATE"
	ActionSecureWrite      = "SECURE_ITEM_WRITE"
	ActionSecureRead       = "SECURE_ITEM_READ"
	ActionSecureDelete     = "SECURE_ITEM_DELETE"
	ActionShred            = "FILE_SHRED"
)

// ReasonInvalidCredential is the only failure reason reported for unlock attempts.
const ReasonInvalidCredential = "invalid_credential"

// Logger interface for pluggable audit implementations
type Logger interface {
	Log(action string, success bool, metadata map[string]interface{}) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Event represents an audit log event
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Service   string                 `json:"service,omitempty"`
	Account   string                 `json:"account,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Source    string                 `json:"source,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
}

// QueryOptions for filtering audit logs
type QueryOptions struct {
	UserID  string
	Since   *time.Time
	Until   *time.Time
	Action  string
	Success *bool // nil = all, true = only success, false = only failures
	Service string
	Limit   int
	Offset  int

	// UnlockEvents restricts the result to unlock attempts and factor changes.
	UnlockEvents bool
}

// QueryResult contains the results of an audit query
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// newEvent builds an event, lifting well-known metadata keys into fields.
func newEvent(userID, action string, success bool, metadata map[string]interface{}) Event {
	event := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Success:   success,
	}

	if len(metadata) == 0 {
		return event
	}

	rest := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		switch k {
		case "error":
			event.Error = fmt.Sprint(v)
		case "reason":
			event.Reason = fmt.Sprint(v)
		case "service":
			event.Service = fmt.Sprint(v)
		case "account":
			event.Account = fmt.Sprint(v)
		case "session_id":
			event.SessionID = fmt.Sprint(v)
		default:
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		event.Metadata = rest
	}

	return event
}

func isUnlockAction(action string) bool {
	switch action {
	case ActionUnlockPasscode, ActionUnlockAnswers, ActionFinalize,
		ActionUpdatePasscode, ActionUpdateSecurityQA, ActionPurge:
		return true
	}
	return false
}

// parseOptions converts map[string]interface{} to specific options struct
func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}
