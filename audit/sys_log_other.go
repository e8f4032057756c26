//go:build windows || plan9

package audit

import "fmt"

type SyslogOptions struct{}

type SyslogLogger struct{ NoOpLogger }

func NewSyslogLogger(*Config) (*SyslogLogger, error) {
	return nil, fmt.Errorf("syslog is not available on this platform")
}
