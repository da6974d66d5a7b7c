package terrors_test

import (
	"testing"

	"github.com/nano-kit/transporter/terrors"
	"github.com/pingcap/errors"
)

func TestAnnotatefPreservesCause(t *testing.T) {
	wrapped := terrors.Annotatef(terrors.ErrUnresolvedPath, "at %s", "Foo.Bar")
	if errors.Cause(wrapped) != terrors.ErrUnresolvedPath {
		t.Fatalf("Cause(wrapped) = %v, want ErrUnresolvedPath", errors.Cause(wrapped))
	}
}

func TestAnnotatefNilIsNil(t *testing.T) {
	if terrors.Annotatef(nil, "whatever") != nil {
		t.Fatal("Annotatef(nil, ...) should return nil")
	}
}

func TestTraceNilIsNil(t *testing.T) {
	if terrors.Trace(nil) != nil {
		t.Fatal("Trace(nil) should return nil")
	}
}

func TestTracePreservesCause(t *testing.T) {
	traced := terrors.Trace(terrors.ErrClosed)
	if errors.Cause(traced) != terrors.ErrClosed {
		t.Fatalf("Cause(traced) = %v, want ErrClosed", errors.Cause(traced))
	}
}

func TestRemoteErrorMessageIncludesValue(t *testing.T) {
	re := &terrors.RemoteError{Value: "boom"}
	if re.Error() == "" {
		t.Fatal("RemoteError.Error() should not be empty")
	}
}
