package idgen_test

import (
	"strings"
	"testing"

	"github.com/nano-kit/transporter/idgen"
)

func TestDefaultGeneratorProducesUniqueValues(t *testing.T) {
	a := idgen.Default.NewID()
	b := idgen.Default.NewID()
	if a == b {
		t.Fatal("NewID returned the same value twice")
	}
	x := idgen.Default.NewAddress()
	y := idgen.Default.NewAddress()
	if x == y {
		t.Fatal("NewAddress returned the same value twice")
	}
}

func TestNamespacedPrefixesAddressNotID(t *testing.T) {
	g := idgen.Namespaced(idgen.Default, "client")
	addr := g.NewAddress()
	if !strings.HasPrefix(addr, "client/") {
		t.Fatalf("NewAddress() = %q, want client/ prefix", addr)
	}

	id := g.NewID()
	if strings.HasPrefix(id, "client/") {
		t.Fatalf("NewID() = %q, should not carry the address namespace", id)
	}
}

func TestNamespacedEmptyIsPassthrough(t *testing.T) {
	g := idgen.Namespaced(idgen.Default, "")
	if g != idgen.Default {
		t.Fatal("Namespaced with empty namespace should return g unchanged")
	}
}
