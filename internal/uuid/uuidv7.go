package uuid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	googleuuid "github.com/google/uuid"
)

// New generates a new UUIDv7 based on the current timestamp.
// UUIDv7 is time-ordered, so ids created on one device sort by creation.
//
// Format (RFC 9562):
// - 48 bits: Unix timestamp in milliseconds
// - 4 bits: version (0111 = 7)
// - 12 bits: random data
// - 2 bits: variant (10)
// - 62 bits: random data
func New() string {
	return NewAt(time.Now())
}

// NewAt generates a UUIDv7 carrying the given timestamp.
func NewAt(now time.Time) string {
	var uuid [16]byte

	timestamp := uint64(now.UnixMilli())
	binary.BigEndian.PutUint64(uuid[0:8], timestamp<<16)

	if _, err := rand.Read(uuid[6:]); err != nil {
		// Fallback to standard UUIDv4 if random generation fails
		return googleuuid.New().String()
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return formatUUID(uuid)
}

// NewPrefixed returns prefix + "_" + a UUIDv7, e.g. "exp_0190...". Record ids
// carry their kind so a stray id in a log line is self-describing.
func NewPrefixed(prefix string) string {
	return prefix + "_" + New()
}

// NewDerived returns prefix + "_" + a name-based UUID (version 5) of parts.
// The same parts always give the same id.
func NewDerived(prefix string, parts ...string) string {
	name := strings.Join(parts, "\x00")
	return prefix + "_" + googleuuid.NewSHA1(googleuuid.NameSpaceOID, []byte(name)).String()
}

// formatUUID formats a 16-byte array as a UUID string
func formatUUID(uuid [16]byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		binary.BigEndian.Uint32(uuid[0:4]),
		binary.BigEndian.Uint16(uuid[4:6]),
		binary.BigEndian.Uint16(uuid[6:8]),
		binary.BigEndian.Uint16(uuid[8:10]),
		uuid[10:16],
	)
}

// IsValid reports whether s is a UUID, optionally behind a "<prefix>_" tag.
func IsValid(s string) bool {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	_, err := googleuuid.Parse(s)
	return err == nil
}
