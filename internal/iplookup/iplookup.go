// Package iplookup resolves an IPv4 address to its origin AS.
package iplookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/dns"
	"github.com/gustycube/uplinks/internal/ripestat"
)

// ErrNotFound is returned when the source has no origin AS for the address
var ErrNotFound = errors.New("address not routed")

// Resolver maps an address to the AS announcing it
type Resolver interface {
	LookupASN(ctx context.Context, ip string) (asn.Number, error)
}

// Options selects and configures a resolver
type Options struct {
	Kind      string
	Stat      *ripestat.Client
	MMDBPath  string
	DNSServer string
	Timeout   time.Duration
}

// New builds the resolver named by opts.Kind. The returned close func releases
// any files held open and is never nil.
func New(opts Options) (Resolver, func() error, error) {
	nop := func() error { return nil }
	switch opts.Kind {
	case "", "ripestat":
		if opts.Stat == nil {
			return nil, nop, errors.New("ripestat resolver needs a client")
		}
		return opts.Stat, nop, nil
	case "cymru":
		return NewCymru(dns.New(opts.DNSServer, opts.Timeout)), nop, nil
	case "mmdb":
		m, err := OpenMMDB(opts.MMDBPath)
		if err != nil {
			return nil, nop, err
		}
		return m, m.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown ip lookup %q", opts.Kind)
	}
}
