package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestFatal(t *testing.T) {
	err := fmt.Errorf("error")
	if Fatal(err) {
		t.Fail()
	}
	err = MakeFatal(err)
	if !Fatal(err) {
		t.Fail()
	}
	if !Fatal(fmt.Errorf("wrap: %w", err)) {
		t.Fail()
	}
}

func TestMergeErrors(t *testing.T) {
	err := fmt.Errorf("first")
	if e := MergeErrors(false, err, nil); e != nil {
		t.Errorf("expected nil, got %v", e)
	}
	if e := MergeErrors(true, nil, err); e == nil || e.Error() != "first" {
		t.Errorf("expected first, got %v", e)
	}
}
