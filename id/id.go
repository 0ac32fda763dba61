// Package id defines identifiers used by warden.
//
// Jobs and heartbeat-mode processes use TypeIDs ("job_…", "proc_…"), which
// are K-sortable, globally unique and safe to embed in Redis key names.
// Stable-mode processes use a [Process] derived from hostname and index so
// the same identity survives a restart.
package id

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

const (
	PrefixJob     Prefix = "job"
	PrefixProcess Prefix = "proc"
)

// ID wraps a TypeID in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string into an ID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// NewJobID generates a new unique job ID.
func NewJobID() ID { return New(PrefixJob) }

// ParseJobID parses a string and validates the "job" prefix.
func ParseJobID(s string) (ID, error) { return ParseWithPrefix(s, PrefixJob) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}
	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// ──────────────────────────────────────────────────
// Process identity
// ──────────────────────────────────────────────────

// Process identifies one running warden process. Its String form is
// embedded in private queue names and the lease record.
type Process struct {
	Hostname string
	// Index is the stable process index, or -1 for heartbeat identities.
	Index int
	token ID
}

// NewStableProcess returns an identity that survives restarts. When
// ephemeral is true the hostname is omitted from String so a container
// replaced under a new hostname still recovers its predecessor's work.
func NewStableProcess(hostname string, index int, ephemeral bool) Process {
	p := Process{Hostname: hostname, Index: index}
	if ephemeral {
		p.Hostname = ""
	}
	return p
}

// NewHeartbeatProcess returns a random identity. Its liveness is tracked
// by a heartbeat key rather than by restarting under the same name.
func NewHeartbeatProcess() Process {
	host, _ := os.Hostname() //nolint:errcheck // informational only
	return Process{Hostname: host, Index: -1, token: New(PrefixProcess)}
}

// ParseProcess reverses String for either form.
func ParseProcess(s string) (Process, error) {
	if strings.HasPrefix(s, string(PrefixProcess)+"_") {
		tok, err := ParseWithPrefix(s, PrefixProcess)
		if err != nil {
			return Process{}, err
		}
		return Process{Index: -1, token: tok}, nil
	}
	host, idx := "", s
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host, idx = s[:i], s[i+1:]
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return Process{}, fmt.Errorf("id: parse process %q: bad index", s)
	}
	return Process{Hostname: host, Index: n}, nil
}

// Stable reports whether the identity is hostname+index based.
func (p Process) Stable() bool { return p.token.IsNil() }

// String returns "proc_<suffix>" for heartbeat identities and
// "hostname:index" (or "index") for stable ones.
func (p Process) String() string {
	if !p.Stable() {
		return p.token.String()
	}
	if p.Hostname == "" {
		return strconv.Itoa(p.Index)
	}
	return p.Hostname + ":" + strconv.Itoa(p.Index)
}

// Hostname returns the local hostname, or "localhost" when it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
