package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/uplinks"
)

const branch = "└── "

// Text is a Sink printing the indented tree as it is walked:
//
//	[193.0.6.139]
//	3333    RIPE-NCC-AS
//	└── 174     COGENT-174
//	    └── 1299    TWELVE99
type Text struct {
	w   io.Writer
	err error
}

func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// Err returns the first write error
func (t *Text) Err() error { return t.err }

// Address prints the bracketed query even when the lookup failed
func (t *Text) Address(ip string, _ asn.Number, _ error) {
	t.printf("[%s]\n", ip)
}

func (t *Text) Root(n asn.Number, holder string) {
	t.printf("%-6s  %s\n", n, holder)
}

func (t *Text) Uplink(e uplinks.Entry) {
	t.printf("%s%s%-6s  %s\n", strings.Repeat(" ", e.Level*4), branch, e.ASN, e.Holder)
}

// Unavailable prints nothing; a failed lookup looks like an AS without uplinks
func (t *Text) Unavailable(asn.Number, int, error) {}

func (t *Text) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// WriteText renders a collected tree exactly as Text would have streamed it
func WriteText(w io.Writer, tree *uplinks.Tree) error {
	t := NewText(w)
	if tree.Address != "" {
		t.Address(tree.Address, 0, nil)
	}
	if tree.Root != nil {
		t.Root(tree.Root.ASN, tree.Root.Holder)
	}
	for _, e := range tree.Entries() {
		t.Uplink(e)
	}
	return t.Err()
}
