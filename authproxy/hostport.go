package authproxy

import (
	"net/http"
	"strconv"
	"strings"
)

// HostPort splits an inbound request's Host header on ":" into a host and
// port. When the header is absent, or the port segment is missing or
// unparsable, the supplied fallbacks are used instead.
func HostPort(r *http.Request, hostIfNotFound string, portIfNotFound int) (string, int) {
	raw := strings.TrimSpace(r.Host)
	if raw == "" {
		return hostIfNotFound, portIfNotFound
	}
	idx := strings.LastIndex(raw, ":")
	if idx < 0 {
		return raw, portIfNotFound
	}
	host, portRaw := raw[:idx], raw[idx+1:]
	if host == "" {
		host = hostIfNotFound
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return host, portIfNotFound
	}
	return host, port
}
