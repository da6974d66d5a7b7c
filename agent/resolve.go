package agent

import (
	"context"
	"reflect"
	"strings"

	"github.com/nano-kit/transporter/terrors"
)

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// resolve walks path inside root, the way the specification describes
// "resolve path inside the provided value; the leading prefix locates the
// calling context, the trailing name identifies the function." Each path
// segment is looked up as a method, then as a struct field, then as a map
// key, on the current (auto-dereferenced) value. An empty path means root
// itself must be a func.
func resolve(root any, path []string) (reflect.Value, error) {
	if len(path) == 0 {
		rv := reflect.ValueOf(root)
		if rv.Kind() != reflect.Func {
			return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "root value is not callable")
		}
		return rv, nil
	}

	cur := reflect.ValueOf(root)
	for i, name := range path {
		cur = deref(cur)
		if !cur.IsValid() {
			return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "%s", strings.Join(path[:i+1], "."))
		}

		if m := methodByName(cur, name); m.IsValid() {
			cur = m
			continue
		}

		switch cur.Kind() {
		case reflect.Struct:
			f := cur.FieldByName(name)
			if !f.IsValid() {
				return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "%s", strings.Join(path[:i+1], "."))
			}
			cur = f
		case reflect.Map:
			f := cur.MapIndex(reflect.ValueOf(name))
			if !f.IsValid() {
				return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "%s", strings.Join(path[:i+1], "."))
			}
			cur = f
		default:
			return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "%s", strings.Join(path[:i+1], "."))
		}
	}

	cur = deref(cur)
	if !cur.IsValid() || cur.Kind() != reflect.Func {
		return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "%s is not callable", strings.Join(path, "."))
	}
	return cur, nil
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func methodByName(v reflect.Value, name string) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m
	}
	if v.CanAddr() {
		if m := v.Addr().MethodByName(name); m.IsValid() {
			return m
		}
	}
	return reflect.Value{}
}

// bindArgs builds the []reflect.Value fn.Call needs from deps (injected
// dependencies, always first) followed by decoded, converting each decoded
// argument to the corresponding parameter type (numeric widening and
// nil-to-zero-value are handled; an outright type mismatch is an error).
func bindArgs(fn reflect.Type, deps []reflect.Value, decoded []any) ([]reflect.Value, error) {
	numIn := fn.NumIn()
	out := make([]reflect.Value, 0, len(deps)+len(decoded))
	out = append(out, deps...)

	for i, raw := range decoded {
		idx := len(deps) + i
		var target reflect.Type
		switch {
		case fn.IsVariadic() && idx >= numIn-1:
			target = fn.In(numIn - 1).Elem()
		case idx < numIn:
			target = fn.In(idx)
		default:
			return nil, terrors.Annotatef(terrors.ErrUnresolvedPath, "too many arguments: got %d, want at most %d", len(deps)+len(decoded), numIn)
		}
		v, err := convertArg(raw, target)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	for idx := len(out); idx < numIn; idx++ {
		if fn.IsVariadic() && idx == numIn-1 {
			continue
		}
		out = append(out, reflect.Zero(fn.In(idx)))
	}
	return out, nil
}

func convertArg(raw any, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}
	if target.Kind() == reflect.Interface && rv.Type().Implements(target) {
		return rv, nil
	}
	return reflect.Value{}, terrors.Annotatef(terrors.ErrUnresolvedPath, "cannot use %s as %s", rv.Type(), target)
}

// splitResults interprets a function's reflect.Call output under the
// conventions a handler may use: (), (T), (error), or (T, error). All
// functions are "treated as possibly failing" the way the specification's
// "all functions are treated as possibly-async" maps, in a synchronous
// host, to "all functions are treated as possibly-erroring".
func splitResults(results []reflect.Value) (any, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if results[0].Type() == errorType {
			if results[0].IsNil() {
				return nil, nil
			}
			return nil, results[0].Interface().(error)
		}
		return results[0].Interface(), nil
	default:
		last := results[len(results)-1]
		if last.Type() == errorType {
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
			if len(results) == 2 {
				return results[0].Interface(), nil
			}
			vals := make([]any, len(results)-1)
			for i := 0; i < len(results)-1; i++ {
				vals[i] = results[i].Interface()
			}
			return vals, nil
		}
		vals := make([]any, len(results))
		for i := range results {
			vals[i] = results[i].Interface()
		}
		return vals, nil
	}
}
