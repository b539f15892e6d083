package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeValidation, "bad input")
	if err.Error() != "[E1001] bad input" {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := Wrap(ErrCodeVCSFetch, "fetch failed", errors.New("timeout"))
	if wrapped.Error() != "[E4002] fetch failed: timeout" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Wrap(ErrCodeInternal, "outer", inner)
	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeIssueNotFound, http.StatusNotFound},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeForgeAuth, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeVCSMergeConflict, http.StatusConflict},
		{ErrCodeCheckTimeout, http.StatusGatewayTimeout},
		{ErrCodeForgeRate, http.StatusTooManyRequests},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeDBQuery, http.StatusInternalServerError},
	}
	for _, c := range cases {
		got := New(c.code, "x").HTTPStatus()
		if got != c.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestWithDetails(t *testing.T) {
	err := ErrValidation("bad").WithDetails(map[string]string{"field": "title"})
	if err.Details == nil {
		t.Error("Details should be set")
	}
}

func TestIsAppError(t *testing.T) {
	if !IsAppError(ErrNotFound("pull request")) {
		t.Error("IsAppError should be true for AppError")
	}
	if IsAppError(errors.New("plain")) {
		t.Error("IsAppError should be false for plain error")
	}

	appErr, ok := AsAppError(ErrForbidden("nope"))
	if !ok || appErr.Code != ErrCodeForbidden {
		t.Error("AsAppError should convert AppError")
	}
}
