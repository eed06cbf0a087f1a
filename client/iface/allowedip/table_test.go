package allowedip

import (
	"net/netip"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_LongestPrefixMatch(t *testing.T) {
	table := NewTable(func(yield func(AllowedIP, string) bool) {
		_ = yield(MustParse("10.0.0.0/8"), "wide") &&
			yield(MustParse("10.1.0.0/16"), "narrow") &&
			yield(MustParse("10.1.2.3/32"), "host") &&
			yield(MustParse("fd00::/16"), "v6")
	})

	testCases := []struct {
		ip    string
		want  string
		found bool
	}{
		{ip: "10.200.0.1", want: "wide", found: true},
		{ip: "10.1.9.9", want: "narrow", found: true},
		{ip: "10.1.2.3", want: "host", found: true},
		{ip: "fd00:1::1", want: "v6", found: true},
		{ip: "11.0.0.1", found: false},
		{ip: "fe80::1", found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.ip, func(t *testing.T) {
			v, ok := table.Find(netip.MustParseAddr(tc.ip))
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestTable_AllCoversEveryRangeOnce(t *testing.T) {
	configured := []AllowedIP{
		MustParse("10.0.0.0/8"),
		MustParse("10.1.0.0/16"),
		MustParse("192.168.7.0/24"),
		MustParse("2001:db8::/32"),
	}
	table := NewSet(configured)
	assert.Equal(t, len(configured), table.Len())

	var got []AllowedIP
	for ip := range table.All() {
		got = append(got, ip)
	}
	slices.SortFunc(got, AllowedIP.Compare)
	assert.Equal(t, configured, got)
}

func TestTable_MasksHostBits(t *testing.T) {
	table := NewSet([]AllowedIP{MustParse("192.168.1.77/24")})

	_, ok := table.Find(netip.MustParseAddr("192.168.1.1"))
	assert.True(t, ok)

	for ip := range table.All() {
		assert.Equal(t, MustParse("192.168.1.0/24"), ip)
	}
}

func TestTable_Empty(t *testing.T) {
	table := NewSet(nil)
	assert.Equal(t, 0, table.Len())

	_, ok := table.Find(netip.MustParseAddr("10.0.0.1"))
	assert.False(t, ok)

	for range table.All() {
		t.Fatal("empty table yielded a range")
	}
}
