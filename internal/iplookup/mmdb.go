package iplookup

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/gustycube/uplinks/internal/asn"
)

// asnRecord is the GeoLite2-ASN record layout
type asnRecord struct {
	AutonomousSystemNumber       uint   `maxminddb:"autonomous_system_number"`
	AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
}

// MMDB resolves offline from a GeoLite2-ASN (or compatible) database
type MMDB struct {
	reader *maxminddb.Reader
}

func OpenMMDB(path string) (*MMDB, error) {
	if path == "" {
		return nil, fmt.Errorf("mmdb path is empty")
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	switch db.Metadata.DatabaseType {
	case "GeoLite2-ASN", "GeoIP2-ISP", "DBIP-ASN-Lite":
	default:
		db.Close()
		return nil, fmt.Errorf("unsupported database type %q", db.Metadata.DatabaseType)
	}
	return &MMDB{reader: db}, nil
}

func (m *MMDB) LookupASN(_ context.Context, ip string) (asn.Number, error) {
	octets, err := ipv4Octets(ip)
	if err != nil {
		return 0, err
	}
	addr := net.ParseIP(strings.Join(octets, "."))
	if addr == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", ip)
	}
	var rec asnRecord
	_, ok, err := m.reader.LookupNetwork(addr, &rec)
	if err != nil {
		return 0, err
	}
	if !ok || rec.AutonomousSystemNumber == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, ip)
	}
	return asn.Number(rec.AutonomousSystemNumber), nil
}

func (m *MMDB) Close() error {
	return m.reader.Close()
}
