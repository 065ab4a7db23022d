// Package snmptest provides in-memory snmp.Poller and snmp.Dialer fakes.
package snmptest

import (
	"context"
	"fmt"
	"sync"

	"github.com/darshan-rambhia/netvault/internal/snmp"
)

// Poller answers queries from fixed maps.
type Poller struct {
	mu      sync.Mutex
	Scalars map[string]any
	Tables  map[string][]snmp.Variable
	Errors  map[string]error // returned for the OID instead of a value
	closed  bool
}

// NewPoller returns an empty fake poller.
func NewPoller() *Poller {
	return &Poller{
		Scalars: make(map[string]any),
		Tables:  make(map[string][]snmp.Variable),
		Errors:  make(map[string]error),
	}
}

// SetTable stores a table under base with values keyed by index.
func (p *Poller) SetTable(base string, values map[int]any) *Poller {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows := make([]snmp.Variable, 0, len(values))
	for idx, v := range values {
		rows = append(rows, snmp.Variable{OID: fmt.Sprintf("%s.%d", base, idx), Value: v})
	}
	p.Tables[base] = rows
	return p
}

func (p *Poller) GetScalar(_ context.Context, oid string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.Errors[oid]; ok {
		return nil, err
	}
	v, ok := p.Scalars[oid]
	if !ok {
		return nil, &snmp.RequestError{OID: oid, Err: snmp.ErrNoSuchObject}
	}
	return v, nil
}

func (p *Poller) WalkTable(_ context.Context, oid string) ([]snmp.Variable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.Errors[oid]; ok {
		return nil, err
	}
	return append([]snmp.Variable(nil), p.Tables[oid]...), nil
}

func (p *Poller) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (p *Poller) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Dialer hands out fake pollers by host.
type Dialer struct {
	mu      sync.Mutex
	pollers map[string]*Poller
	errs    map[string]error
	targets []snmp.Target
}

// NewDialer returns a dialer with no registered hosts.
func NewDialer() *Dialer {
	return &Dialer{pollers: make(map[string]*Poller), errs: make(map[string]error)}
}

// Handle registers the poller returned for host.
func (d *Dialer) Handle(host string, p *Poller) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollers[host] = p
	delete(d.errs, host)
}

// Fail makes dials to host return err.
func (d *Dialer) Fail(host string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[host] = err
}

func (d *Dialer) Dial(_ context.Context, t snmp.Target) (snmp.Poller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, t)
	if err, ok := d.errs[t.Host]; ok {
		return nil, err
	}
	p, ok := d.pollers[t.Host]
	if !ok {
		return nil, fmt.Errorf("no fake poller for %s", t.Host)
	}
	return p, nil
}

// Targets returns every target dialed so far.
func (d *Dialer) Targets() []snmp.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]snmp.Target(nil), d.targets...)
}
