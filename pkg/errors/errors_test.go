package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestDomainErrorsMatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("handle request: %w", ErrAlreadyHandled)
	if !stdErrors.Is(wrapped, ErrAlreadyHandled) {
		t.Fatal("expected wrapped error to match ErrAlreadyHandled")
	}

	var appErr *AppError
	if !stdErrors.As(wrapped, &appErr) {
		t.Fatal("expected wrapped error to expose AppError")
	}
	if appErr.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", appErr.StatusCode)
	}
}

func TestDomainErrorStatusCodes(t *testing.T) {
	cases := map[*AppError]int{
		ErrObjectNotResolvable: http.StatusNotFound,
		ErrDuplicateRequest:    http.StatusBadRequest,
		ErrAlreadyHandled:      http.StatusConflict,
		ErrMissingPermissions:  http.StatusBadRequest,
		ErrUnknownPermission:   http.StatusBadRequest,
	}
	for err, status := range cases {
		if err.StatusCode != status {
			t.Fatalf("%s: expected status %d, got %d", err.Code, status, err.StatusCode)
		}
	}
}
