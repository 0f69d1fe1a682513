// Package term implements the canonical term encoding used for release
// metadata. It covers only the subset of term syntax metadata actually
// uses: atoms, binary strings, integers, lists, tuples (the 2-element
// Tuple2 and the n-element Tuple), and key-sorted maps. It deliberately does not implement the full source-language term
// grammar.
package term

import (
	"sort"
	"strconv"
	"strings"
)

// Term is one node of a canonical term tree.
type Term interface {
	encode(b *strings.Builder)
}

// Atom is a bare, unquoted identifier such as "name" or "ok".
type Atom string

func (a Atom) encode(b *strings.Builder) { b.WriteString(string(a)) }

// Binary is a UTF-8 string rendered as a quoted binary literal.
type Binary string

func (s Binary) encode(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteByte('<')
	b.WriteByte('"')
	for _, r := range string(s) {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	b.WriteByte('>')
	b.WriteByte('>')
}

// Int is a canonical integer.
type Int int64

func (n Int) encode(b *strings.Builder) { b.WriteString(strconv.FormatInt(int64(n), 10)) }

// List is an ordered sequence of terms, rendered "[a, b, c]". An empty
// list renders "[]".
type List []Term

func (l List) encode(b *strings.Builder) {
	b.WriteByte('[')
	for i, t := range l {
		if i > 0 {
			b.WriteString(", ")
		}
		t.encode(b)
	}
	b.WriteByte(']')
}

// Tuple2 is a 2-element tuple, rendered "{a, b}".
type Tuple2 struct {
	First, Second Term
}

func (t Tuple2) encode(b *strings.Builder) {
	b.WriteByte('{')
	t.First.encode(b)
	b.WriteString(", ")
	t.Second.encode(b)
	b.WriteByte('}')
}

// Tuple is an n-element tuple, rendered "{a, b, c}". Unlike Tuple2 it
// carries an arbitrary number of elements, the shape a lockfile entry
// record needs (atom tag plus a fixed but varying-by-version field
// count).
type Tuple []Term

func (t Tuple) encode(b *strings.Builder) {
	b.WriteByte('{')
	for i, e := range t {
		if i > 0 {
			b.WriteString(", ")
		}
		e.encode(b)
	}
	b.WriteByte('}')
}

// Map is a key-sorted association, rendered as a list of 2-tuples: the
// metadata format has no native map literal, so maps are encoded the
// same way a sequence of key/value records would be.
type Map map[string]Term

func (m Map) encode(b *strings.Builder) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make(List, 0, len(keys))
	for _, k := range keys {
		list = append(list, Tuple2{First: Binary(k), Second: m[k]})
	}
	list.encode(b)
}

// EncodeRecords renders metadata as one canonical record per top-level
// key, each a "{key, value}." line, in sorted key order, followed by a
// trailing newline per record.
func EncodeRecords(metadata map[string]Term) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		rec := Tuple2{First: Atom(k), Second: metadata[k]}
		rec.encode(&b)
		b.WriteString(".\n")
	}
	return b.String()
}

// String renders a single term using the canonical encoding, without
// the record wrapper EncodeRecords applies.
func String(t Term) string {
	var b strings.Builder
	t.encode(&b)
	return b.String()
}

// FromStrings builds a List of Binary terms from plain strings, a
// common shape for metadata fields like "files" or "licenses".
func FromStrings(values []string) List {
	list := make(List, 0, len(values))
	for _, v := range values {
		list = append(list, Binary(v))
	}
	return list
}

// FromPairs builds a List of Tuple2{Binary,Binary} terms, the shape used
// for requirement lists such as "deps" entries rendered as metadata
// rather than as wire Dependency messages.
func FromPairs(pairs [][2]string) List {
	list := make(List, 0, len(pairs))
	for _, p := range pairs {
		list = append(list, Tuple2{First: Binary(p[0]), Second: Binary(p[1])})
	}
	return list
}
