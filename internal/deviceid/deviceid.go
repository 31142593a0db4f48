// Package deviceid derives the stable host identifier readings are tagged
// with. The identifier is the host's hardware address rendered as six
// colon-separated lowercase hex octets.
package deviceid

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var pattern = regexp.MustCompile(`^[0-9a-f]{2}(:[0-9a-f]{2}){5}$`)

// Host returns the identifier for this machine. The node ID is taken from
// the first network interface with a hardware address; when none exists a
// random node ID is used for the life of the process.
func Host() string {
	return Format(uuid.NodeID())
}

// FromInterface returns the identifier derived from a named interface.
func FromInterface(name string) (string, error) {
	if !uuid.SetNodeInterface(name) {
		return "", fmt.Errorf("interface %q has no usable hardware address", name)
	}
	return Format(uuid.NodeID()), nil
}

// Format renders a 6-byte node ID as xx:xx:xx:xx:xx:xx.
func Format(node []byte) string {
	return strings.ToLower(net.HardwareAddr(node).String())
}

// Parse normalizes s and checks it is a well-formed identifier.
func Parse(s string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(s))
	if !Valid(id) {
		return "", fmt.Errorf("invalid device id %q: want xx:xx:xx:xx:xx:xx", s)
	}
	return id, nil
}

// Valid reports whether id has the xx:xx:xx:xx:xx:xx form.
func Valid(id string) bool {
	return pattern.MatchString(id)
}
