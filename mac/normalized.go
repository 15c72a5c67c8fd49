package mac

import (
	"fmt"
	"strconv"
)

// NormalizedRequestString builds the canonical, newline-joined request
// representation that the MAC is computed over. The field order and the
// trailing newline are both part of the contract; changing either changes
// every signature.
func NormalizedRequestString(ts Timestamp, nonce Nonce, method, requestURI, host string, port int, ext Ext) string {
	return fmt.Sprintf(
		"%s\n%s\n%s\n%s\n%s\n%s\n%s\n",
		ts, nonce, method, requestURI, host, strconv.Itoa(port), ext,
	)
}
