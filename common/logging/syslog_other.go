//go:build windows || plan9

package logging

import (
	"errors"
	"io"
)

func openSyslog(string) (io.WriteCloser, error) {
	return nil, errors.New("syslog output is not supported on this platform")
}
