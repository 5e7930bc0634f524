package uplinks

import (
	"github.com/gustycube/uplinks/internal/asn"
)

// Entry is one emitted uplink line. Level 0 entries are direct uplinks of the root.
type Entry struct {
	Parent asn.Number `json:"parent"`
	ASN    asn.Number `json:"asn"`
	Holder string     `json:"holder"`
	Level  int        `json:"level"`
}

// Sink receives the tree as it is walked, depth first
type Sink interface {
	// Address reports the resolution of an IP query. err is non-nil when no AS was found.
	Address(ip string, n asn.Number, err error)
	Root(n asn.Number, holder string)
	Uplink(e Entry)
	// Unavailable reports that the aut-num of n, expanded at level, could not be fetched
	Unavailable(n asn.Number, level int, err error)
}

// Node is an AS in a collected tree
type Node struct {
	ASN     asn.Number `json:"asn"`
	Holder  string     `json:"holder"`
	Error   string     `json:"error,omitempty"`
	Uplinks []*Node    `json:"uplinks,omitempty"`
}

// Tree is the collected result of one Run
type Tree struct {
	Query   string `json:"query"`
	Address string `json:"address,omitempty"`
	Deep    int    `json:"deep"`
	Error   string `json:"error,omitempty"`
	Root    *Node  `json:"root,omitempty"`
}

// Entries flattens the tree back into emission order
func (t *Tree) Entries() []Entry {
	var out []Entry
	if t.Root == nil {
		return out
	}
	var visit func(parent *Node, level int)
	visit = func(parent *Node, level int) {
		for _, up := range parent.Uplinks {
			out = append(out, Entry{Parent: parent.ASN, ASN: up.ASN, Holder: up.Holder, Level: level})
			visit(up, level+1)
		}
	}
	visit(t.Root, 0)
	return out
}

// Collector is a Sink that builds a Tree in memory
type Collector struct {
	tree  *Tree
	stack []*Node
}

func NewCollector(query string, deep int) *Collector {
	return &Collector{tree: &Tree{Query: query, Deep: deep}}
}

func (c *Collector) Tree() *Tree { return c.tree }

func (c *Collector) Address(ip string, _ asn.Number, err error) {
	c.tree.Address = ip
	if err != nil {
		c.tree.Error = err.Error()
	}
}

func (c *Collector) Root(n asn.Number, holder string) {
	c.tree.Root = &Node{ASN: n, Holder: holder}
	c.stack = []*Node{c.tree.Root}
}

// Uplink attaches e under the node currently expanded at e.Level
func (c *Collector) Uplink(e Entry) {
	if e.Level >= len(c.stack) {
		return
	}
	parent := c.stack[e.Level]
	node := &Node{ASN: e.ASN, Holder: e.Holder}
	parent.Uplinks = append(parent.Uplinks, node)
	c.stack = append(c.stack[:e.Level+1], node)
}

func (c *Collector) Unavailable(n asn.Number, level int, err error) {
	if level >= len(c.stack) || c.stack[level].ASN != n {
		return
	}
	c.stack[level].Error = err.Error()
}

// Multi fans every event out to each sink in order
type Multi []Sink

func (m Multi) Address(ip string, n asn.Number, err error) {
	for _, s := range m {
		s.Address(ip, n, err)
	}
}

func (m Multi) Root(n asn.Number, holder string) {
	for _, s := range m {
		s.Root(n, holder)
	}
}

func (m Multi) Uplink(e Entry) {
	for _, s := range m {
		s.Uplink(e)
	}
}

func (m Multi) Unavailable(n asn.Number, level int, err error) {
	for _, s := range m {
		s.Unavailable(n, level, err)
	}
}
