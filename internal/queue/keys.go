package queue

import (
	"strconv"
	"strings"
)

// Key addresses one envelope: "<namespace>_<operation>:<sequence>".
type Key string

// KeyFor builds the key of an envelope.
func KeyFor(namespace, operation string, seq int64) Key {
	return Key(namespace + "_" + operation + ":" + strconv.FormatInt(seq, 10))
}

func (k Key) String() string { return string(k) }

// Parts splits k into its operation and sequence. ok is false when k does not
// belong to namespace or does not end in a decimal sequence, which is the
// case for auxiliary keys such as claim markers.
func (k Key) Parts(namespace string) (operation string, seq int64, ok bool) {
	s := string(k)
	prefix := namespace + "_"
	if !strings.HasPrefix(s, prefix) {
		return "", 0, false
	}
	rest := s[len(prefix):]
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", 0, false
	}
	digits := rest[i+1:]
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return "", 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], n, true
}

// operationPattern is the scan pattern for all keys of one operation.
func operationPattern(namespace, operation string) string {
	return escapeGlob(namespace) + "_" + escapeGlob(operation) + ":*"
}

// namespacePattern is the scan pattern for every key of the namespace.
func namespacePattern(namespace string) string {
	return escapeGlob(namespace) + "_*"
}

// escapeGlob quotes the characters Redis MATCH treats as wildcards.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// naturalLess orders strings so that embedded runs of digits compare by
// numeric value: "op:9" < "op:10".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c < 0
			}
			a, b = ra, rb
		default:
			if a[0] != b[0] {
				return a[0] < b[0]
			}
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit runs of arbitrary length by value, then
// by length so that "007" sorts after "7".
func compareNumeric(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
