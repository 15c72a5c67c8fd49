// Package config parses the command line and optional topology file shared
// by the key server, credential service and auth proxy binaries.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// LogLevel is a flag.Value wrapping slog's level, accepting the same
// DEBUG/INFO/WARNING/ERROR/CRITICAL/FATAL vocabulary as the original
// command line parsers.
type LogLevel struct {
	Level slog.Level
}

func (l *LogLevel) String() string {
	if l == nil {
		return "ERROR"
	}
	return levelName(l.Level)
}

func (l *LogLevel) Set(raw string) error {
	level, err := parseLevelName(raw)
	if err != nil {
		return err
	}
	l.Level = level
	return nil
}

func parseLevelName(raw string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL", "FATAL":
		return slog.LevelError + 4, nil
	default:
		return 0, fmt.Errorf("unrecognized logging level %q", raw)
	}
}

func levelName(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "DEBUG"
	case level <= slog.LevelInfo:
		return "INFO"
	case level <= slog.LevelWarn:
		return "WARNING"
	case level <= slog.LevelError:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

// HostPort is a flag.Value parsing a "host:port" pair, the same
// hostcolonport custom option type used throughout the original command
// line parsers.
type HostPort struct {
	Host string
	Port int
}

func (h *HostPort) String() string {
	if h == nil || h.Host == "" {
		return ""
	}
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

func (h *HostPort) Set(raw string) error {
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return fmt.Errorf("invalid host:port %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port in %q: %w", raw, err)
	}
	h.Host = host
	h.Port = port
	return nil
}

// KeyStoreTarget is a flag.Value parsing the --key_store flag, of the form
// "host:port/database" for the CouchDB-style gateway or
// "postgres://..." to select the Postgres-backed gateway.
type KeyStoreTarget struct {
	Raw      string
	Postgres bool
	HostPort string
	Database string
}

func (k *KeyStoreTarget) String() string {
	if k == nil {
		return ""
	}
	return k.Raw
}

func (k *KeyStoreTarget) Set(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("key store target cannot be empty")
	}
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		k.Raw = trimmed
		k.Postgres = true
		return nil
	}
	lastSlash := strings.LastIndex(trimmed, "/")
	if lastSlash <= 0 || lastSlash == len(trimmed)-1 {
		return fmt.Errorf("key store target %q must be host:port/database", trimmed)
	}
	k.Raw = trimmed
	k.Postgres = false
	k.HostPort = trimmed[:lastSlash]
	k.Database = trimmed[lastSlash+1:]
	return nil
}

// Flags holds the resolved command line configuration shared by every yar
// binary. Not every binary uses every field.
type Flags struct {
	Log       LogLevel
	ListenOn  HostPort
	KeyStore  KeyStoreTarget
	KeyServer HostPort
	AppServer HostPort
	MaxAge    time.Duration
	AuthMethod string
	Syslog    string
	LogFile   string
	Topology  string
}

// ParseFlags parses args (typically os.Args[1:]) against the named flag
// set, applying the defaults the original key service and auth server
// command line parsers used.
func ParseFlags(name string, args []string) (*Flags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	listenPort := 8070
	if name == "authproxy" {
		listenPort = 8000
	}
	f := &Flags{
		Log:        LogLevel{Level: slog.LevelError},
		ListenOn:   HostPort{Host: "127.0.0.1", Port: listenPort},
		KeyStore:   KeyStoreTarget{Raw: "127.0.0.1:5984/creds", HostPort: "127.0.0.1:5984", Database: "creds"},
		KeyServer:  HostPort{Host: "localhost", Port: 8070},
		AppServer:  HostPort{Host: "localhost", Port: 8080},
		MaxAge:     30 * time.Second,
		AuthMethod: "DAS",
	}

	fs.Var(&f.Log, "log", "logging level [DEBUG,INFO,WARNING,ERROR,CRITICAL,FATAL] - default = ERROR")
	fs.Var(&f.ListenOn, "lon", "address:port to listen on - default = "+f.ListenOn.String())
	fs.Var(&f.KeyStore, "key_store", "key store - host:port/database or postgres://... - default = 127.0.0.1:5984/creds")
	fs.Var(&f.KeyServer, "keyserver", "key server - default = localhost:8070")
	fs.Var(&f.AppServer, "appserver", "app server - default = localhost:8080")
	fs.DurationVar(&f.MaxAge, "maxage", 30*time.Second, "max age of valid request - default = 30s")
	fs.StringVar(&f.AuthMethod, "authmethod", "DAS", "app server's authorization method - default = DAS")
	fs.StringVar(&f.Syslog, "syslog", "", "syslog unix domain socket - default = disabled")
	fs.StringVar(&f.LogFile, "logfile", "", "log to this file - default = stdout")
	fs.StringVar(&f.Topology, "topology", "", "optional multi-service topology file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}
