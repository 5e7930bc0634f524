// Package uplinks builds the tree of upstream providers of an autonomous
// system from the import policy in its RIPE aut-num object.
package uplinks

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gustycube/uplinks/internal/asn"
	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/metrics"
	"github.com/gustycube/uplinks/internal/registry"
)

// MaxDeep is the deepest tree a caller may ask for
const MaxDeep = 3

var (
	// ErrInvalidQuery is returned for input that is neither an IPv4 address nor an AS number
	ErrInvalidQuery = errors.New("query is neither an IPv4 address nor an AS number")
	// ErrInvalidDepth is returned when deep is outside 1..MaxDeep
	ErrInvalidDepth = errors.New("deep must be between 1 and 3")
	// ErrUnresolved is returned when an IP query maps to no origin AS
	ErrUnresolved = errors.New("address has no origin AS")
)

// Registry fetches aut-num attributes
type Registry interface {
	AutNum(ctx context.Context, n asn.Number) ([]registry.Attribute, error)
}

// Holders names an AS
type Holders interface {
	Holder(ctx context.Context, n asn.Number) (string, error)
}

// Resolver maps an IPv4 address to its origin AS
type Resolver interface {
	LookupASN(ctx context.Context, ip string) (asn.Number, error)
}

type Builder struct {
	registry Registry
	holders  Holders
	resolver Resolver
	log      *logging.Logger
}

func New(reg Registry, holders Holders, resolver Resolver, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.Nop()
	}
	return &Builder{registry: reg, holders: holders, resolver: resolver, log: log}
}

// Run resolves query to a root AS and streams its uplink tree, deep levels
// down, into sink. Remote failures below the root never fail the run; they
// prune the affected branch and are reported through Sink.Unavailable.
func (b *Builder) Run(ctx context.Context, query string, deep int, sink Sink) (err error) {
	tr := otel.Tracer("uplinks")
	ctx, span := tr.Start(ctx, "uplinks.Run")
	defer span.End()
	span.SetAttributes(attribute.String("uplinks.query", query), attribute.Int("uplinks.deep", deep))

	defer func() {
		metrics.TreesTotal.WithLabelValues(resultLabel(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if deep < 1 || deep > MaxDeep {
		return ErrInvalidDepth
	}

	var root asn.Number
	switch asn.Classify(query) {
	case asn.KindIPv4:
		n, lerr := b.resolver.LookupASN(ctx, query)
		if lerr == nil && !asn.Valid(n.String()) {
			lerr = asn.ErrInvalid
		}
		sink.Address(query, n, lerr)
		if lerr != nil {
			b.log.Debugw("address lookup failed", "ip", query, "err", lerr)
			return fmt.Errorf("%w: %s: %v", ErrUnresolved, query, lerr)
		}
		root = n
	case asn.KindASN:
		root, _ = asn.Parse(query)
	default:
		return ErrInvalidQuery
	}
	span.SetAttributes(attribute.Int64("uplinks.root", int64(root)))

	sink.Root(root, b.holder(ctx, root))
	b.walk(ctx, root, 0, deep-1, sink)
	return ctx.Err()
}

// walk emits the uplinks of parent at level and descends while level < maxDepth
func (b *Builder) walk(ctx context.Context, parent asn.Number, level, maxDepth int, sink Sink) {
	tr := otel.Tracer("uplinks")
	ctx, span := tr.Start(ctx, "uplinks.walk")
	defer span.End()
	span.SetAttributes(attribute.Int64("uplinks.asn", int64(parent)), attribute.Int("uplinks.level", level))

	ups := b.uplinksOf(ctx, parent, level, sink)
	span.SetAttributes(attribute.Int("uplinks.count", ups.Len()))
	for _, up := range ups.Sorted() {
		if ctx.Err() != nil {
			return
		}
		holder := b.holder(ctx, up)
		if level > maxDepth {
			continue
		}
		sink.Uplink(Entry{Parent: parent, ASN: up, Holder: holder, Level: level})
		metrics.Edge(level)
		if level < maxDepth {
			b.walk(ctx, up, level+1, maxDepth, sink)
		}
	}
}

// Upstreams fetches the aut-num of n and extracts its full-table uplinks
func (b *Builder) Upstreams(ctx context.Context, n asn.Number) (Set, error) {
	attrs, err := b.registry.AutNum(ctx, n)
	if err != nil {
		return nil, err
	}
	return Extract(attrs), nil
}

// uplinksOf is the one place where a failed registry lookup turns into an
// empty uplink set. The sink still hears about the failure.
func (b *Builder) uplinksOf(ctx context.Context, n asn.Number, level int, sink Sink) Set {
	ups, err := b.Upstreams(ctx, n)
	if err != nil {
		b.log.Debugw("aut-num lookup failed", "asn", n.Handle(), "level", level, "err", err)
		sink.Unavailable(n, level, err)
		return Set{}
	}
	return ups
}

// holder returns the holder name of n, or "" when it cannot be looked up
func (b *Builder) holder(ctx context.Context, n asn.Number) string {
	name, err := b.holders.Holder(ctx, n)
	if err != nil {
		b.log.Debugw("holder lookup failed", "asn", n.Handle(), "err", err)
		return ""
	}
	return name
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidDepth):
		return "invalid"
	case errors.Is(err, ErrUnresolved):
		return "unresolved"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
