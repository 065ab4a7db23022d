package snmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/darshan-rambhia/netvault/internal/model"
	"github.com/gosnmp/gosnmp"
)

// GoSNMPDialer opens v2c or v3 sessions with gosnmp.
type GoSNMPDialer struct {
	opts Options
}

// NewDialer creates a dialer with the given session options.
func NewDialer(opts Options) *GoSNMPDialer {
	return &GoSNMPDialer{opts: opts.withDefaults()}
}

// Dial opens a UDP session to the target.
func (d *GoSNMPDialer) Dial(ctx context.Context, t Target) (Poller, error) {
	g, err := d.session(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", t.Host, err)
	}
	return &session{g: g}, nil
}

func (d *GoSNMPDialer) session(ctx context.Context, t Target) (*gosnmp.GoSNMP, error) {
	port := t.Port
	if port == 0 {
		port = d.opts.Port
	}
	g := &gosnmp.GoSNMP{
		Target:         t.Host,
		Port:           port,
		Transport:      "udp",
		Timeout:        d.opts.Timeout,
		Retries:        d.opts.Retries,
		Context:        ctx,
		MaxOids:        gosnmp.MaxOids,
		MaxRepetitions: 25,
	}

	switch t.Version {
	case model.SNMPv3:
		auth, err := authProtocol(t.AuthProtocol)
		if err != nil {
			return nil, err
		}
		priv, err := privProtocol(t.PrivProtocol)
		if err != nil {
			return nil, err
		}
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = msgFlags(auth, priv)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 t.Username,
			AuthenticationProtocol:   auth,
			AuthenticationPassphrase: t.AuthKey,
			PrivacyProtocol:          priv,
			PrivacyPassphrase:        t.PrivKey,
		}
	case model.SNMPv2c, "":
		g.Version = gosnmp.Version2c
		g.Community = t.Community
	default:
		return nil, fmt.Errorf("unsupported snmp version %q", t.Version)
	}
	return g, nil
}

func authProtocol(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return gosnmp.NoAuth, nil
	case "MD5":
		return gosnmp.MD5, nil
	case "SHA", "SHA1":
		return gosnmp.SHA, nil
	case "SHA224":
		return gosnmp.SHA224, nil
	case "SHA256":
		return gosnmp.SHA256, nil
	case "SHA384":
		return gosnmp.SHA384, nil
	case "SHA512":
		return gosnmp.SHA512, nil
	}
	return gosnmp.NoAuth, fmt.Errorf("unsupported auth protocol %q", name)
}

func privProtocol(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(name) {
	case "", "NONE":
		return gosnmp.NoPriv, nil
	case "DES":
		return gosnmp.DES, nil
	case "AES", "AES128":
		return gosnmp.AES, nil
	case "AES192":
		return gosnmp.AES192, nil
	case "AES256":
		return gosnmp.AES256, nil
	case "AES192C":
		return gosnmp.AES192C, nil
	case "AES256C":
		return gosnmp.AES256C, nil
	}
	return gosnmp.NoPriv, fmt.Errorf("unsupported privacy protocol %q", name)
}

func msgFlags(auth gosnmp.SnmpV3AuthProtocol, priv gosnmp.SnmpV3PrivProtocol) gosnmp.SnmpV3MsgFlags {
	switch {
	case auth == gosnmp.NoAuth:
		return gosnmp.NoAuthNoPriv
	case priv == gosnmp.NoPriv:
		return gosnmp.AuthNoPriv
	}
	return gosnmp.AuthPriv
}

// session adapts a connected gosnmp client to Poller. It is not safe for
// concurrent use; each device poll opens its own.
type session struct {
	g *gosnmp.GoSNMP
}

func (s *session) GetScalar(ctx context.Context, oid string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RequestError{OID: oid, Timeout: true, Err: err}
	}
	s.g.Context = ctx
	pkt, err := s.g.Get([]string{oid})
	if err != nil {
		return nil, requestError(oid, err)
	}
	if len(pkt.Variables) == 0 {
		return nil, &RequestError{OID: oid, Err: ErrNoSuchObject}
	}
	v := pkt.Variables[0]
	switch v.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return nil, &RequestError{OID: oid, Err: ErrNoSuchObject}
	}
	return v.Value, nil
}

func (s *session) WalkTable(ctx context.Context, oid string) ([]Variable, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RequestError{OID: oid, Timeout: true, Err: err}
	}
	s.g.Context = ctx
	pdus, err := s.g.BulkWalkAll(oid)
	if err != nil {
		return nil, requestError(oid, err)
	}
	out := make([]Variable, 0, len(pdus))
	for _, p := range pdus {
		switch p.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
			continue
		}
		out = append(out, Variable{OID: p.Name, Value: p.Value})
	}
	return out, nil
}

func (s *session) Close() error {
	if s.g.Conn == nil {
		return nil
	}
	return s.g.Conn.Close()
}

func requestError(oid string, err error) *RequestError {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(err.Error(), "timeout")
	return &RequestError{OID: oid, Timeout: timeout, Err: err}
}
