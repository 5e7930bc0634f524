// Package dns performs single TXT queries against a configured nameserver.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ErrNoAnswer is returned when the server answers NOERROR without TXT records
var ErrNoAnswer = errors.New("no TXT answer")

// Client queries one nameserver over UDP, retrying over TCP on truncation
type Client struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

// New returns a client for server ("host:port"; port 53 is assumed when missing)
func New(server string, timeout time.Duration) *Client {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Server returns the nameserver address in use
func (c *Client) Server() string { return c.server }

// LookupTXT returns every TXT string in the answer section for name
func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := c.udp.ExchangeContext(ctx, m, c.server)
	if err != nil {
		return nil, err
	}
	if in.Truncated {
		if in, _, err = c.tcp.ExchangeContext(ctx, m, c.server); err != nil {
			return nil, err
		}
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s: %s", strings.TrimSuffix(name, "."), dns.RcodeToString[in.Rcode])
	}

	txts := []string{}
	for _, rr := range in.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			txts = append(txts, strings.Join(t.Txt, ""))
		}
	}
	if len(txts) == 0 {
		return nil, ErrNoAnswer
	}
	return txts, nil
}
