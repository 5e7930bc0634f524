package iplookup

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/dns"
)

const cymruZone = "origin.asn.cymru.com"

type txtLookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Cymru resolves through the Team Cymru IP-to-ASN DNS service
type Cymru struct {
	dns txtLookuper
}

func NewCymru(c *dns.Client) *Cymru {
	return &Cymru{dns: c}
}

func (c *Cymru) LookupASN(ctx context.Context, ip string) (asn.Number, error) {
	name, err := cymruName(ip)
	if err != nil {
		return 0, err
	}
	txts, err := c.dns.LookupTXT(ctx, name)
	if err != nil {
		return 0, err
	}
	for _, txt := range txts {
		if n, err := parseCymru(txt); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNotFound, ip)
}

// cymruName turns 193.0.6.139 into 139.6.0.193.origin.asn.cymru.com
func cymruName(ip string) (string, error) {
	octets, err := ipv4Octets(ip)
	if err != nil {
		return "", err
	}
	rev := make([]string, 0, 5)
	for i := len(octets) - 1; i >= 0; i-- {
		rev = append(rev, octets[i])
	}
	rev = append(rev, cymruZone)
	return strings.Join(rev, "."), nil
}

// ipv4Octets splits a dotted quad accepted by asn.IsIPv4 and drops leading
// zeros, which net.ParseIP rejects.
func ipv4Octets(ip string) ([]string, error) {
	if !asn.IsIPv4(ip) {
		return nil, fmt.Errorf("not an IPv4 address: %q", ip)
	}
	octets := strings.Split(ip, ".")
	for i, o := range octets {
		v, _ := strconv.Atoi(o)
		octets[i] = strconv.Itoa(v)
	}
	return octets, nil
}

// parseCymru reads the first origin from "3333 | 193.0.0.0/21 | EU | ripencc | 1993-09-01".
// Multi-origin prefixes list several space separated ASNs in the first field.
func parseCymru(txt string) (asn.Number, error) {
	field, _, _ := strings.Cut(txt, "|")
	origins := strings.Fields(field)
	if len(origins) == 0 {
		return 0, asn.ErrInvalid
	}
	return asn.Parse(origins[0])
}
