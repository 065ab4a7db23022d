// Package snmp is the polling client used by the health collector and the
// alarm engine. Consumers depend on the narrow Poller interface; GoSNMPDialer
// is the production implementation on top of gosnmp.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/darshan-rambhia/netvault/internal/model"
)

// Standard OIDs read by netvault.
const (
	OIDSysUpTime       = ".1.3.6.1.2.1.1.3.0"
	OIDHrProcessorLoad = ".1.3.6.1.2.1.25.3.3.1.2"
	OIDMemTotalReal    = ".1.3.6.1.4.1.2021.4.5.0"
	OIDMemAvailReal    = ".1.3.6.1.4.1.2021.4.6.0"
	OIDIfDescr         = ".1.3.6.1.2.1.2.2.1.2"
	OIDIfAdminStatus   = ".1.3.6.1.2.1.2.2.1.7"
	OIDIfOperStatus    = ".1.3.6.1.2.1.2.2.1.8"
)

// Interface status values from IF-MIB.
const (
	StatusUp   = 1
	StatusDown = 2
)

// Variable is one varbind returned by a table walk.
type Variable struct {
	OID   string
	Value any
}

// Poller issues read-only queries against one device.
type Poller interface {
	GetScalar(ctx context.Context, oid string) (any, error)
	WalkTable(ctx context.Context, oid string) ([]Variable, error)
	Close() error
}

// Target describes how to reach a device. Secrets are already decrypted.
type Target struct {
	Host         string
	Port         uint16
	Version      model.SNMPVersion
	Community    string
	Username     string
	AuthProtocol string
	AuthKey      string
	PrivProtocol string
	PrivKey      string
}

// Dialer opens polling sessions.
type Dialer interface {
	Dial(ctx context.Context, t Target) (Poller, error)
}

// ErrNoSuchObject is returned when the agent has no value for an OID.
var ErrNoSuchObject = errors.New("no such object")

// RequestError describes a failed query.
type RequestError struct {
	OID     string
	Timeout bool
	Err     error
}

func (e *RequestError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("snmp request %s timed out: %v", e.OID, e.Err)
	}
	return fmt.Sprintf("snmp request %s: %v", e.OID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRetryable reports whether the request may succeed if repeated.
func (e *RequestError) IsRetryable() bool { return e.Timeout }

// ParseIndex returns the trailing table index of oid under base, e.g. 3 for
// .1.3.6.1.2.1.2.2.1.8.3 under .1.3.6.1.2.1.2.2.1.8.
func ParseIndex(oid, base string) (int, bool) {
	oid = "." + strings.TrimPrefix(oid, ".")
	base = "." + strings.TrimSuffix(strings.TrimPrefix(base, "."), ".")
	rest, ok := strings.CutPrefix(oid, base+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ToInt64 converts a numeric varbind value. Agents occasionally report
// gauges as octet strings, so decimal strings are accepted too.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintToInt64(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintToInt64(n)
	case float64:
		return int64(math.Round(n)), true
	case []byte:
		return parseDecimal(string(n))
	case string:
		return parseDecimal(n)
	}
	return 0, false
}

func uintToInt64(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func parseDecimal(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

// ToString converts a display-string varbind value.
func ToString(v any) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Options configures session construction. Zero Timeout and Port take
// their defaults; zero Retries means no retries, and DefaultOptions sets 1.
type Options struct {
	Timeout time.Duration // per request, default 2s
	Retries int           // negative is treated as 0
	Port    uint16        // default 161
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Port == 0 {
		o.Port = 161
	}
	return o
}

// DefaultOptions returns a 2s timeout with a single retry.
func DefaultOptions() Options {
	return Options{Timeout: 2 * time.Second, Retries: 1, Port: 161}
}
