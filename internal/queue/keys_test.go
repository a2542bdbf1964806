package queue

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyParts(t *testing.T) {
	cases := []struct {
		key Key
		op  string
		seq int64
		ok  bool
	}{
		{"ns_insert:1", "insert", 1, true},
		{"ns_insert:bulk:42", "insert:bulk", 42, true},
		{"ns_a_b:7", "a_b", 7, true},
		{"ns_insert:1:claimed", "", 0, false},
		{"ns_insert:", "", 0, false},
		{"ns_:5", "", 0, false},
		{"ns_insert", "", 0, false},
		{"other_insert:1", "", 0, false},
		{"ns_insert:-1", "", 0, false},
		{"ns_insert:99999999999999999999", "", 0, false},
	}
	for _, tc := range cases {
		op, seq, ok := tc.key.Parts("ns")
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.op, op, tc.key)
		assert.Equal(t, tc.seq, seq, tc.key)
	}
	assert.Equal(t, Key("ns_insert:12"), KeyFor("ns", "insert", 12))
}

func TestNaturalLess(t *testing.T) {
	keys := []string{"ns_op:10", "ns_op:9", "ns_op:100", "ns_op:1", "ns_op:2", "ns_op:010"}
	sort.Slice(keys, func(i, j int) bool { return naturalLess(keys[i], keys[j]) })
	assert.Equal(t, []string{"ns_op:1", "ns_op:2", "ns_op:9", "ns_op:10", "ns_op:010", "ns_op:100"}, keys)

	assert.True(t, naturalLess("a2b", "a10b"))
	assert.True(t, naturalLess("a", "a1"))
	assert.False(t, naturalLess("a1", "a1"))
	assert.True(t, naturalLess("ns_ins:2", "ns_insert:1"))
	assert.True(t, naturalLess("x:18446744073709551616", "x:18446744073709551617"))
}

func TestScanPatterns(t *testing.T) {
	assert.Equal(t, "ns_insert:*", operationPattern("ns", "insert"))
	assert.Equal(t, `ns_a\*b\?\[c\]:*`, operationPattern("ns", "a*b?[c]"))
	assert.Equal(t, "UsagiMQ_*", namespacePattern("UsagiMQ"))
	assert.Equal(t, `n\\s_*`, namespacePattern(`n\s`))
}
