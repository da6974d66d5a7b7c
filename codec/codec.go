// Package codec implements the specification's reference-encoding rule: it
// recursively rewrites a payload, substituting functions and proxy handles
// for address references on encode, and materializing proxy handles for
// those references on decode. It has no notion of sessions or agents; it is
// handed callback closures (MakeRef, MakeProxy) by the session package the
// way the distilled specification describes encode/decode as pure except
// for those callbacks.
package codec

import (
	"fmt"
	"reflect"

	"github.com/nano-kit/transporter/message"
	"github.com/nano-kit/transporter/terrors"
)

// Proxy is implemented by proxy handles (agent.Proxy) so this package can
// recognize them during traversal without importing the agent package,
// which itself depends on codec.
type Proxy interface {
	// IsTransporterProxy always returns true; its only purpose is to give
	// proxy handles a distinct, checkable identity.
	IsTransporterProxy() bool
}

// MakeRef is called once per function or Proxy encountered while encoding;
// it must return the address that should stand in for node in the encoded
// payload (typically by spawning a new server agent wrapping node).
type MakeRef func(node any) (string, error)

// MakeProxy is called once per message.Ref encountered while decoding; it
// must return the local value (typically a new client agent's proxy) that
// stands in for the remote address.
type MakeProxy func(address string) any

// Encode recursively traverses value, replacing every function or Proxy
// with a message.Ref via makeRef. It is pure except for calls to makeRef.
// Maps, slices, arrays, pointers, and exported-field structs are traversed;
// everything else is passed through unchanged. A cyclic payload (a pointer,
// map, or slice reachable from itself) returns terrors.ErrCyclicPayload
// instead of recursing forever.
func Encode(value any, makeRef MakeRef) (any, error) {
	return encode(value, makeRef, make(map[uintptr]bool))
}

func encode(value any, makeRef MakeRef, visited map[uintptr]bool) (any, error) {
	if value == nil {
		return message.Undefined{}, nil
	}

	if p, ok := value.(Proxy); ok {
		addr, err := makeRef(p)
		if err != nil {
			return nil, err
		}
		return message.NewRef(addr), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return message.Undefined{}, nil
		}
		addr, err := makeRef(value)
		if err != nil {
			return nil, err
		}
		return message.NewRef(addr), nil

	case reflect.Map:
		if rv.IsNil() {
			return message.Undefined{}, nil
		}
		ptr := rv.Pointer()
		if visited[ptr] {
			return nil, terrors.ErrCyclicPayload
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			ev, err := encode(iter.Value().Interface(), makeRef, visited)
			if err != nil {
				return nil, err
			}
			out[key] = ev
		}
		return out, nil

	case reflect.Slice:
		if rv.IsNil() {
			return message.Undefined{}, nil
		}
		ptr := rv.Pointer()
		if visited[ptr] {
			return nil, terrors.ErrCyclicPayload
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return encodeSeq(rv, makeRef, visited)

	case reflect.Array:
		return encodeSeq(rv, makeRef, visited)

	case reflect.Ptr:
		if rv.IsNil() {
			return message.Undefined{}, nil
		}
		ptr := rv.Pointer()
		if visited[ptr] {
			return nil, terrors.ErrCyclicPayload
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return encode(rv.Elem().Interface(), makeRef, visited)

	case reflect.Interface:
		if rv.IsNil() {
			return message.Undefined{}, nil
		}
		return encode(rv.Elem().Interface(), makeRef, visited)

	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" { // unexported field: omitted from the encoded map
				continue
			}
			ev, err := encode(rv.Field(i).Interface(), makeRef, visited)
			if err != nil {
				return nil, err
			}
			out[f.Name] = ev
		}
		return out, nil

	default:
		return value, nil
	}
}

func encodeSeq(rv reflect.Value, makeRef MakeRef, visited map[uintptr]bool) (any, error) {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev, err := encode(rv.Index(i).Interface(), makeRef, visited)
		if err != nil {
			return nil, err
		}
		out[i] = ev
	}
	return out, nil
}

// Decode is the dual of Encode: every message.Ref (or, after a round trip
// through a JSON-based transport, every map that looks like one) is
// replaced by makeProxy(address); maps and slices are rebuilt recursively;
// everything else passes through unchanged.
func Decode(value any, makeProxy MakeProxy) any {
	switch v := value.(type) {
	case message.Ref:
		return makeProxy(v.Address)

	case message.Undefined:
		return nil

	case map[string]any:
		if addr, ok := refAddress(v); ok {
			return makeProxy(addr)
		}
		out := make(map[string]any, len(v))
		for k, vv := range v {
			out[k] = Decode(vv, makeProxy)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			out[i] = Decode(vv, makeProxy)
		}
		return out

	default:
		return value
	}
}

// refAddress reports whether m is a message.Ref that was flattened into a
// generic map by a JSON round trip, returning its address if so.
func refAddress(m map[string]any) (string, bool) {
	if len(m) != 2 {
		return "", false
	}
	t, ok := m["type"].(string)
	if !ok || t != message.RefType {
		return "", false
	}
	addr, ok := m["address"].(string)
	return addr, ok
}
