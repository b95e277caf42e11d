// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package object

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedYAML is returned for documents LoadYAML cannot turn into a
// graph.
var ErrUnsupportedYAML = errors.New("unsupported yaml graph")

// Directive keys recognised inside YAML mappings.
const (
	keyProto   = "__proto__"
	keyClass   = "__class__"
	keyHost    = "__host__"
	keyFrozen  = "__frozen__"
	keyHidden  = "__hidden__"
	keyGuarded = "__guarded__"
)

// LoadYAML builds an object graph from a YAML document.
//
// Description:
//
//	Mappings become objects and sequences become arrays. Anchors and
//	aliases produce shared references, so an alias to an enclosing anchor
//	is a cycle. A small set of directive keys shape the object built for a
//	mapping instead of becoming attributes:
//
//	  __proto__:   mapping or alias used as the prototype
//	  __class__:   class name shown by Repr
//	  __host__:    true for a host object
//	  __frozen__:  true to freeze the object once populated
//	  __hidden__:  mapping of attributes hidden from enumeration
//	  __guarded__: list of attribute names whose reads fail
//
// Inputs:
//
//	data - A single YAML document whose top level is a mapping or sequence.
//
// Outputs:
//
//	*Object - The root object.
//	error - Wraps ErrUnsupportedYAML for scalar roots, merge keys and
//	  malformed directives, or the YAML parse error.
//
// Example:
//
//	root, err := object.LoadYAML([]byte(`
//	cache: &c
//	  owner: *c
//	`))
func LoadYAML(data []byte) (*Object, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, fmt.Errorf("%w: empty document", ErrUnsupportedYAML)
		}
		root = root.Content[0]
	}
	for root.Kind == yaml.AliasNode {
		root = root.Alias
	}
	if root.Kind != yaml.MappingNode && root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: top level must be a mapping or sequence (line %d)", ErrUnsupportedYAML, root.Line)
	}

	b := &builder{built: make(map[*yaml.Node]*Object)}
	v, err := b.value(root)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(*Object)
	for _, o := range b.freeze {
		o.Freeze()
	}
	return obj, nil
}

type builder struct {
	built map[*yaml.Node]*Object

	// freeze is applied after the whole graph exists so cycles back into a
	// frozen object can still be wired.
	freeze []*Object
}

func (b *builder) value(n *yaml.Node) (any, error) {
	for n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.MappingNode:
		return b.mapping(n)
	case yaml.SequenceNode:
		return b.sequence(n)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding scalar at line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: node kind %d at line %d", ErrUnsupportedYAML, n.Kind, n.Line)
}

func (b *builder) sequence(n *yaml.Node) (*Object, error) {
	if o, ok := b.built[n]; ok {
		return o, nil
	}
	o := NewArray()
	b.built[n] = o
	for i, item := range n.Content {
		v, err := b.value(item)
		if err != nil {
			return nil, err
		}
		o.Set(fmt.Sprint(i), v)
	}
	o.Hide("length", len(n.Content))
	return o, nil
}

func (b *builder) mapping(n *yaml.Node) (*Object, error) {
	if o, ok := b.built[n]; ok {
		return o, nil
	}
	o := New()
	b.built[n] = o

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Tag == "!!merge" {
			return nil, fmt.Errorf("%w: merge keys are not supported (line %d)", ErrUnsupportedYAML, k.Line)
		}
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: non-scalar key at line %d", ErrUnsupportedYAML, k.Line)
		}
		if err := b.entry(o, k.Value, v); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (b *builder) entry(o *Object, key string, v *yaml.Node) error {
	switch key {
	case keyProto:
		pv, err := b.value(v)
		if err != nil {
			return err
		}
		p, ok := pv.(*Object)
		if !ok && pv != nil {
			return fmt.Errorf("%w: %s must be a mapping (line %d)", ErrUnsupportedYAML, keyProto, v.Line)
		}
		o.SetPrototype(p)
	case keyClass:
		o.class = v.Value
	case keyHost:
		var host bool
		if err := v.Decode(&host); err != nil {
			return fmt.Errorf("%w: %s at line %d: %v", ErrUnsupportedYAML, keyHost, v.Line, err)
		}
		o.host = host
	case keyFrozen:
		var frozen bool
		if err := v.Decode(&frozen); err != nil {
			return fmt.Errorf("%w: %s at line %d: %v", ErrUnsupportedYAML, keyFrozen, v.Line, err)
		}
		if frozen {
			b.freeze = append(b.freeze, o)
		}
	case keyHidden:
		if v.Kind != yaml.MappingNode {
			return fmt.Errorf("%w: %s must be a mapping (line %d)", ErrUnsupportedYAML, keyHidden, v.Line)
		}
		for i := 0; i+1 < len(v.Content); i += 2 {
			hv, err := b.value(v.Content[i+1])
			if err != nil {
				return err
			}
			o.Hide(v.Content[i].Value, hv)
		}
	case keyGuarded:
		var names []string
		if err := v.Decode(&names); err != nil {
			return fmt.Errorf("%w: %s at line %d: %v", ErrUnsupportedYAML, keyGuarded, v.Line, err)
		}
		for _, name := range names {
			o.Guard(name)
		}
	default:
		val, err := b.value(v)
		if err != nil {
			return err
		}
		o.Set(key, val)
	}
	return nil
}
