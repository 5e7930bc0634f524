package dns

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startServer runs a UDP nameserver on loopback answering with h
func startServer(t *testing.T, h dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: h, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestLookupTXT(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if r.Question[0].Name == "139.6.0.193.origin.asn.cymru.com." {
			m.Answer = append(m.Answer, &dns.TXT{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
				Txt: []string{"3333 | 193.0.0.0/21 | EU | ripencc | 1993-09-01"},
			})
		} else {
			m.Rcode = dns.RcodeNameError
		}
		w.WriteMsg(m)
	})

	c := New(addr, 2*time.Second)
	txts, err := c.LookupTXT(context.Background(), "139.6.0.193.origin.asn.cymru.com")
	if err != nil {
		t.Fatalf("LookupTXT failed: %v", err)
	}
	if len(txts) != 1 || !strings.HasPrefix(txts[0], "3333 |") {
		t.Errorf("unexpected answer %v", txts)
	}

	if _, err := c.LookupTXT(context.Background(), "1.0.0.10.origin.asn.cymru.com"); err == nil {
		t.Error("expected NXDOMAIN error")
	}
}

func TestLookupTXT_Empty(t *testing.T) {
	addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		w.WriteMsg(m)
	})

	_, err := New(addr, time.Second).LookupTXT(context.Background(), "example.org")
	if err != ErrNoAnswer {
		t.Errorf("expected ErrNoAnswer, got %v", err)
	}
}

func TestNew_DefaultPort(t *testing.T) {
	if s := New("8.8.8.8", 0).Server(); s != "8.8.8.8:53" {
		t.Errorf("expected port 53 to be added, got %s", s)
	}
	if s := New("1.1.1.1:5353", 0).Server(); s != "1.1.1.1:5353" {
		t.Errorf("expected explicit port to be kept, got %s", s)
	}
}
