// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package path encodes the routes a traversal takes through an object graph.
//
// A Path is an ordered list of segments. Segment 0 is a label chosen for
// the root; every following segment is an attribute name or index. Two
// encodings exist:
//
//   - String renders an accessor expression such as heap.sessions[3]["a b"]
//     that, evaluated against the same root, reaches the same node.
//   - Hash renders a canonical, reversible key such as heap/sessions/3/a%20b
//     suitable for map keys and cross-run comparison. FromHash inverts it.
package path

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// separator joins encoded segments. url.PathEscape always escapes it.
const separator = "/"

// ErrInvalidHash is returned when a hash contains an undecodable segment.
var ErrInvalidHash = errors.New("invalid path hash")

// Path is a sequence of attribute accesses starting at a labelled root.
type Path []string

// New returns a path holding only the root label.
func New(root string) Path {
	return Path{root}
}

// Append returns a new path with seg added. The receiver is not modified
// and the result never shares a backing array with it, so paths stored in
// worklists stay stable while siblings are appended.
func (p Path) Append(seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

// Root returns segment 0, or "" for an empty path.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Last returns the final segment, or "" for an empty path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Depth is the number of attribute accesses below the root.
func (p Path) Depth() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Equal reports whether p and q have identical segments.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is a leading subsequence of p.
func (p Path) HasPrefix(q Path) bool {
	if len(q) > len(p) {
		return false
	}
	return p[:len(q)].Equal(q)
}

// Clone returns a copy that does not share storage with p.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// String renders p as an accessor expression.
//
// Segment 0 is written literally. Identifier-like segments become
// ".name", canonical non-negative integers become "[N]" and everything
// else becomes a quoted index ["..."] using JSON string syntax, which is
// also a valid script string literal. Bytes that are not valid UTF-8 have
// no such spelling and are shown as U+FFFD; Hash keeps them exactly.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(p[0])
	for _, seg := range p[1:] {
		switch {
		case isIndex(seg):
			b.WriteByte('[')
			b.WriteString(seg)
			b.WriteByte(']')
		case isIdentifier(seg):
			b.WriteByte('.')
			b.WriteString(seg)
		default:
			b.WriteByte('[')
			b.WriteString(quote(seg))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// quote renders s as a JSON string literal without HTML escaping.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Hash renders p as a canonical reversible key.
func (p Path) Hash() string {
	encoded := make([]string, len(p))
	for i, seg := range p {
		encoded[i] = url.PathEscape(seg)
	}
	return strings.Join(encoded, separator)
}

// FromHash decodes a key produced by Hash.
//
// FromHash(p.Hash()) equals p for every non-empty path. The empty string
// decodes to a path with a single empty root label.
func FromHash(hash string) (Path, error) {
	parts := strings.Split(hash, separator)
	out := make(Path, len(parts))
	for i, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrInvalidHash, i, err)
		}
		out[i] = seg
	}
	return out, nil
}

// MustFromHash is FromHash for keys known to be valid. It panics on error.
func MustFromHash(hash string) Path {
	p, err := FromHash(hash)
	if err != nil {
		panic(err)
	}
	return p
}

// Display renders a hash key as an accessor expression, falling back to
// the raw key when it cannot be decoded.
func Display(hash string) string {
	p, err := FromHash(hash)
	if err != nil {
		return hash
	}
	return p.String()
}

// isIndex reports whether seg is a canonical non-negative integer: digits
// only, no leading zero unless seg is "0".
func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	if len(seg) > 1 && seg[0] == '0' {
		return false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return false
		}
	}
	return true
}

// isIdentifier reports whether seg matches [A-Za-z_$][A-Za-z0-9_$]*.
func isIdentifier(seg string) bool {
	if seg == "" {
		return false
	}
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch {
		case c == '_' || c == '$':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
