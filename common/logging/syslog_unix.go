//go:build !windows && !plan9

package logging

import (
	"fmt"
	"io"
	"log/syslog"
)

func openSyslog(tag string) (io.WriteCloser, error) {
	w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, tag)
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return w, nil
}
