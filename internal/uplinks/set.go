package uplinks

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/registry"
)

const (
	importAttr   = "import"
	acceptAnySfx = " accept ANY"
)

// fromAS captures the peer of an import line. At most six digits are taken,
// a longer number keeps its first six.
var fromAS = regexp.MustCompile(`^from AS(\d{1,6})`)

// Set is a deduplicated collection of AS numbers
type Set map[asn.Number]struct{}

func (s Set) Add(n asn.Number) { s[n] = struct{}{} }

func (s Set) Len() int { return len(s) }

// Sorted returns the members in ascending numeric order
func (s Set) Sorted() []asn.Number {
	out := make([]asn.Number, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Extract collects the peers an aut-num takes the full table from: import
// lines of the form "from ASn ... accept ANY". Filtered imports are ignored.
func Extract(attrs []registry.Attribute) Set {
	set := Set{}
	for _, a := range attrs {
		if a.Name != importAttr || !strings.HasSuffix(a.Value, acceptAnySfx) {
			continue
		}
		m := fromAS.FindStringSubmatch(a.Value)
		if m == nil {
			continue
		}
		n, err := asn.Parse(m[1])
		if err != nil {
			continue
		}
		set.Add(n)
	}
	return set
}
