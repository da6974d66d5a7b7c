package fiber_test

import (
	"testing"

	"github.com/nano-kit/transporter/fiber"
	"github.com/nano-kit/transporter/terrors"
	"github.com/pingcap/errors"
)

func TestFiberTerminateIsIdempotent(t *testing.T) {
	f := fiber.New("a")
	calls := 0
	f.OnTerminate(func() { calls++ })

	f.Terminate()
	f.Terminate()

	if calls != 1 {
		t.Fatalf("hook ran %d times, want 1", calls)
	}
	select {
	case <-f.Done():
	default:
		t.Fatal("Done() not closed after Terminate")
	}
	if f.State() != fiber.Terminated {
		t.Fatalf("state = %v, want Terminated", f.State())
	}
}

func TestFiberOnTerminateAfterTerminationRunsSynchronously(t *testing.T) {
	f := fiber.New("a")
	f.Terminate()

	ran := false
	f.OnTerminate(func() { ran = true })
	if !ran {
		t.Fatal("hook registered after termination did not run")
	}
}

func TestSupervisorCascadesInRegistrationOrder(t *testing.T) {
	s := fiber.NewSupervisor("root")
	var order []string

	for _, id := range []string{"x", "y", "z"} {
		id := id
		task := fiber.New(id)
		task.OnTerminate(func() { order = append(order, id) })
		if err := s.Observe(task); err != nil {
			t.Fatalf("Observe(%s): %v", id, err)
		}
	}

	if s.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", s.Count())
	}

	s.Terminate()

	want := []string{"x", "y", "z"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Count() != 0 {
		t.Fatalf("Count() after Terminate = %d, want 0", s.Count())
	}
}

func TestSupervisorObserveDuplicateID(t *testing.T) {
	s := fiber.NewSupervisor("root")
	if err := s.Observe(fiber.New("dup")); err != nil {
		t.Fatalf("first Observe: %v", err)
	}
	err := s.Observe(fiber.New("dup"))
	if errors.Cause(err) != terrors.ErrUniqueTaskID {
		t.Fatalf("Observe duplicate = %v, want ErrUniqueTaskID", err)
	}
}

func TestSupervisorObserveAfterTerminateFails(t *testing.T) {
	s := fiber.NewSupervisor("root")
	s.Terminate()
	err := s.Observe(fiber.New("late"))
	if errors.Cause(err) != terrors.ErrTerminated {
		t.Fatalf("Observe after terminate = %v, want ErrTerminated", err)
	}
}

func TestSupervisorAutoRemovesSelfTerminatedChild(t *testing.T) {
	s := fiber.NewSupervisor("root")
	child := fiber.New("child")
	if err := s.Observe(child); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	child.Terminate()
	if s.Count() != 0 {
		t.Fatalf("Count() after child self-terminated = %d, want 0", s.Count())
	}
	if _, ok := s.Task("child"); ok {
		t.Fatal("Task(child) still found after self-termination")
	}
}
