package allowedip

import (
	"iter"
	"net/netip"

	"github.com/gaissmai/bart"
)

// Table maps CIDR ranges to values and answers longest-prefix-match queries.
// It is built once and read concurrently afterwards; there is no synchronisation for writers.
type Table[V any] struct {
	routes bart.Table[V]
}

// NewTable builds a table from (range, value) pairs. A later duplicate range overwrites an earlier one.
func NewTable[V any](entries iter.Seq2[AllowedIP, V]) *Table[V] {
	t := &Table[V]{}
	for ip, v := range entries {
		t.routes.Insert(ip.Prefix(), v)
	}
	return t
}

// NewSet builds a value-less table from a list of ranges
func NewSet(ips []AllowedIP) *Table[struct{}] {
	return NewTable(func(yield func(AllowedIP, struct{}) bool) {
		for _, ip := range ips {
			if !yield(ip, struct{}{}) {
				return
			}
		}
	})
}

// Find returns the value of the most specific range covering ip
func (t *Table[V]) Find(ip netip.Addr) (V, bool) {
	return t.routes.Lookup(ip)
}

// Len returns the number of distinct ranges
func (t *Table[V]) Len() int {
	return t.routes.Size()
}

// All yields every stored range exactly once with its value. Ranges are reported masked.
func (t *Table[V]) All() iter.Seq2[AllowedIP, V] {
	return func(yield func(AllowedIP, V) bool) {
		for pfx, v := range t.routes.All() {
			if !yield(AllowedIP{Addr: pfx.Addr(), Cidr: uint8(pfx.Bits())}, v) {
				return
			}
		}
	}
}
