package iox

import (
	"errors"
	"io"
	"testing"

	"go.uber.org/multierr"
)

type spyCloser struct {
	closed bool
	err    error
	order  *[]string
	name   string
}

func (s *spyCloser) Close() error {
	s.closed = true
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	return s.err
}

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{err: errors.New("ignored")}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseAll_ReverseOrder(t *testing.T) {
	var order []string
	a := &spyCloser{name: "store", order: &order}
	b := &spyCloser{name: "policy", order: &order}

	if err := CloseAll(a, nil, b); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if len(order) != 2 || order[0] != "policy" || order[1] != "store" {
		t.Errorf("close order = %v, want [policy store]", order)
	}
}

func TestCloseAll_CombinesErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &spyCloser{err: errA}
	b := &spyCloser{err: errB}
	c := &spyCloser{}

	err := CloseAll(a, b, c)
	if !a.closed || !b.closed || !c.closed {
		t.Fatal("every closer must be closed even after a failure")
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both close errors", err)
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("combined %d errors, want 2", n)
	}
}

func TestCloseAll_Empty(t *testing.T) {
	if err := CloseAll(); err != nil {
		t.Errorf("CloseAll() = %v, want nil", err)
	}
	var none []io.Closer
	if err := CloseAll(none...); err != nil {
		t.Errorf("CloseAll(nil...) = %v, want nil", err)
	}
}
