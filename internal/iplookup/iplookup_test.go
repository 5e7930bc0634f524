package iplookup

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustycube/uplinks/internal/asn"
)

type fakeTXT map[string][]string

func (f fakeTXT) LookupTXT(_ context.Context, name string) ([]string, error) {
	if txts, ok := f[name]; ok {
		return txts, nil
	}
	return nil, errors.New("NXDOMAIN")
}

func TestCymruName(t *testing.T) {
	tests := []struct {
		ip   string
		want string
		err  bool
	}{
		{ip: "193.0.6.139", want: "139.6.0.193.origin.asn.cymru.com"},
		{ip: "010.001.0.1", want: "1.0.1.10.origin.asn.cymru.com"},
		{ip: "1.2.3", err: true},
		{ip: "AS3333", err: true},
	}
	for _, tt := range tests {
		got, err := cymruName(tt.ip)
		if tt.err {
			assert.Error(t, err, tt.ip)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestIPv4Octets(t *testing.T) {
	for ip, want := range map[string]string{
		"010.0.0.1":   "10.0.0.1",
		"193.0.6.139": "193.0.6.139",
		"000.00.0.00": "0.0.0.0",
	} {
		octets, err := ipv4Octets(ip)
		require.NoError(t, err, ip)
		got := strings.Join(octets, ".")
		assert.Equal(t, want, got)
		assert.NotNil(t, net.ParseIP(got), ip)
	}

	_, err := ipv4Octets("256.0.0.1")
	assert.Error(t, err)
}

func TestMMDB_RejectsNonIPv4(t *testing.T) {
	m := &MMDB{}
	_, err := m.LookupASN(context.Background(), "3333")
	assert.Error(t, err)
}

func TestParseCymru(t *testing.T) {
	n, err := parseCymru("3333 | 193.0.0.0/21 | EU | ripencc | 1993-09-01")
	require.NoError(t, err)
	assert.Equal(t, asn.Number(3333), n)

	n, err = parseCymru("13335 209242 | 1.1.1.0/24 | AU | apnic | 2011-08-11")
	require.NoError(t, err)
	assert.Equal(t, asn.Number(13335), n)

	_, err = parseCymru(" | 10.0.0.0/8 | ZZ | | ")
	assert.Error(t, err)
}

func TestCymru_LookupASN(t *testing.T) {
	c := &Cymru{dns: fakeTXT{
		"139.6.0.193.origin.asn.cymru.com": {"garbage", "3333 | 193.0.0.0/21 | EU | ripencc | 1993-09-01"},
		"1.0.0.10.origin.asn.cymru.com":    {"NA | 10.0.0.0/8"},
	}}

	n, err := c.LookupASN(context.Background(), "193.0.6.139")
	require.NoError(t, err)
	assert.Equal(t, asn.Number(3333), n)

	_, err = c.LookupASN(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.LookupASN(context.Background(), "8.8.8.8")
	assert.Error(t, err)
}

func TestOpenMMDB_Errors(t *testing.T) {
	_, err := OpenMMDB("")
	assert.Error(t, err)

	_, err = OpenMMDB(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	_, closeFn, err := New(Options{Kind: "ripestat"})
	assert.Error(t, err, "ripestat without a client")
	assert.NotNil(t, closeFn)

	r, closeFn, err := New(Options{Kind: "cymru", DNSServer: "127.0.0.1:53"})
	require.NoError(t, err)
	assert.IsType(t, &Cymru{}, r)
	assert.NoError(t, closeFn())

	_, _, err = New(Options{Kind: "mmdb"})
	assert.Error(t, err)

	_, _, err = New(Options{Kind: "whois"})
	assert.Error(t, err)
}
