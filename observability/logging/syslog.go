//go:build !windows

package logging

import (
	"fmt"
	"log/slog"
	"log/syslog"
)

// SetupSyslog configures logging to forward JSON lines to the syslog unix
// domain socket at path, for deployments started with --syslog. There is
// no ecosystem syslog client among the packages this module otherwise
// depends on, so this uses the standard library's log/syslog directly.
func SetupSyslog(service, env, path string) (*slog.Logger, error) {
	writer, err := syslog.Dial("unixgram", path, syslog.LOG_ERR|syslog.LOG_DAEMON, service)
	if err != nil {
		return nil, fmt.Errorf("dial syslog socket %s: %w", path, err)
	}
	return setup(service, env, writer), nil
}
