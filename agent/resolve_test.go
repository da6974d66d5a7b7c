package agent

import (
	"context"
	"reflect"
	"testing"
)

type greeter struct {
	Name string
}

func (g *greeter) Hello(who string) string { return "hello " + who + " from " + g.Name }

func (greeter) Fail() (string, error) { return "", nil }

func TestResolveMethodOnPointerReceiver(t *testing.T) {
	g := &greeter{Name: "svc"}
	fn, err := resolve(g, []string{"Hello"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out := fn.Call([]reflect.Value{reflect.ValueOf("world")})
	if out[0].String() != "hello world from svc" {
		t.Fatalf("got %q", out[0].String())
	}
}

func TestResolveEmptyPathRequiresCallableRoot(t *testing.T) {
	_, err := resolve(&greeter{}, nil)
	if err == nil {
		t.Fatal("resolve of non-func root with empty path should fail")
	}

	fn := func() string { return "ok" }
	rv, err := resolve(fn, nil)
	if err != nil {
		t.Fatalf("resolve(func, nil): %v", err)
	}
	if rv.Call(nil)[0].String() != "ok" {
		t.Fatal("resolved root func did not invoke correctly")
	}
}

func TestResolveStructField(t *testing.T) {
	type holder struct {
		Greeter *greeter
	}
	h := holder{Greeter: &greeter{Name: "nested"}}
	fn, err := resolve(h, []string{"Greeter", "Hello"})
	if err != nil {
		t.Fatalf("resolve nested: %v", err)
	}
	out := fn.Call([]reflect.Value{reflect.ValueOf("x")})
	if out[0].String() != "hello x from nested" {
		t.Fatalf("got %q", out[0].String())
	}
}

func TestResolveMapKey(t *testing.T) {
	m := map[string]any{"fn": func(x int) int { return x * 2 }}
	fn, err := resolve(m, []string{"fn"})
	if err != nil {
		t.Fatalf("resolve map: %v", err)
	}
	out := fn.Call([]reflect.Value{reflect.ValueOf(21)})
	if out[0].Int() != 42 {
		t.Fatalf("got %d", out[0].Int())
	}
}

func TestResolveUnknownPathFails(t *testing.T) {
	_, err := resolve(&greeter{}, []string{"DoesNotExist"})
	if err == nil {
		t.Fatal("resolve of unknown path should fail")
	}
}

func TestResolveNonCallableLeafFails(t *testing.T) {
	g := &greeter{Name: "leaf"}
	_, err := resolve(g, []string{"Name"})
	if err == nil {
		t.Fatal("resolve of a string field should fail, not callable")
	}
}

func TestBindArgsPrependsDepsAndConvertsTypes(t *testing.T) {
	fn := func(ctx context.Context, a int64, b string) (string, error) {
		return b, nil
	}
	ft := reflect.TypeOf(fn)
	deps := []reflect.Value{reflect.ValueOf(context.Background())}
	// decoded "a" arrives as plain int (typical of JSON numeric decode),
	// must convert to int64.
	args, err := bindArgs(ft, deps, []any{int(7), "hi"})
	if err != nil {
		t.Fatalf("bindArgs: %v", err)
	}
	if len(args) != 3 {
		t.Fatalf("len(args) = %d, want 3", len(args))
	}
	if args[1].Kind() != reflect.Int64 || args[1].Int() != 7 {
		t.Fatalf("args[1] = %v, want int64(7)", args[1])
	}
}

func TestBindArgsMissingTrailingArgsZeroFilled(t *testing.T) {
	fn := func(a, b string) string { return a + b }
	ft := reflect.TypeOf(fn)
	args, err := bindArgs(ft, nil, []any{"only"})
	if err != nil {
		t.Fatalf("bindArgs: %v", err)
	}
	if args[1].String() != "" {
		t.Fatalf("args[1] = %q, want zero value", args[1].String())
	}
}

func TestBindArgsTooManyFails(t *testing.T) {
	fn := func(a string) string { return a }
	ft := reflect.TypeOf(fn)
	_, err := bindArgs(ft, nil, []any{"a", "b"})
	if err == nil {
		t.Fatal("bindArgs with too many decoded args should fail")
	}
}

func TestBindArgsVariadic(t *testing.T) {
	fn := func(prefix string, rest ...int) int {
		sum := 0
		for _, r := range rest {
			sum += r
		}
		return sum
	}
	ft := reflect.TypeOf(fn)
	args, err := bindArgs(ft, nil, []any{"p", 1, 2, 3})
	if err != nil {
		t.Fatalf("bindArgs variadic: %v", err)
	}
	if len(args) != 4 {
		t.Fatalf("len(args) = %d, want 4", len(args))
	}
}

func TestSplitResultsNoReturn(t *testing.T) {
	val, err := splitResults(nil)
	if val != nil || err != nil {
		t.Fatalf("splitResults(nil) = %v, %v", val, err)
	}
}

func TestSplitResultsSingleError(t *testing.T) {
	okVal := reflect.ValueOf(&struct{}{}).Elem() // placeholder, unused
	_ = okVal
	nilErr := reflect.Zero(reflect.TypeOf((*error)(nil)).Elem())
	val, err := splitResults([]reflect.Value{nilErr})
	if val != nil || err != nil {
		t.Fatalf("splitResults([nil error]) = %v, %v", val, err)
	}
}

func TestSplitResultsValueAndError(t *testing.T) {
	nilErr := reflect.Zero(reflect.TypeOf((*error)(nil)).Elem())
	val, err := splitResults([]reflect.Value{reflect.ValueOf("ok"), nilErr})
	if err != nil || val != "ok" {
		t.Fatalf("splitResults = %v, %v", val, err)
	}
}

func TestSplitResultsMultiNonError(t *testing.T) {
	val, err := splitResults([]reflect.Value{reflect.ValueOf(1), reflect.ValueOf(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals, ok := val.([]any)
	if !ok || len(vals) != 2 {
		t.Fatalf("splitResults = %#v, want []any of len 2", val)
	}
}
