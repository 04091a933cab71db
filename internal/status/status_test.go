package status

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"plain error", io.ErrUnexpectedEOF, Unexpected},
		{"typed", NewDuplicate("key already exists"), Duplicate},
		{"wrapped", fmt.Errorf("install: %w", NewBusy("serial in use")), Busy},
		{"wrap keeps cause", Wrap(IO, io.ErrClosedPipe, "write failed"), IO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := Wrap(IO, io.ErrClosedPipe, "write failed")
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Error("errors.Is should find wrapped cause")
	}
	if MessageOf(err) != "write failed" {
		t.Errorf("MessageOf() = %q", MessageOf(err))
	}
	if MessageOf(io.EOF) != "Unexpected Error" {
		t.Errorf("MessageOf(untyped) = %q", MessageOf(io.EOF))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{OK, http.StatusOK},
		{InvalidArg, http.StatusUnprocessableEntity},
		{Duplicate, http.StatusUnprocessableEntity},
		{Access, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{Unsupported, http.StatusBadRequest},
		{Unexpected, http.StatusInternalServerError},
		{IO, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := HTTPStatus(tt.code); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsEndOfStream(t *testing.T) {
	if !IsEndOfStream(New(EOF, "closed")) || !IsEndOfStream(New(Pipe, "reset")) {
		t.Error("EOF and Pipe should be end of stream")
	}
	if IsEndOfStream(nil) || IsEndOfStream(New(IO, "x")) {
		t.Error("nil and IO should not be end of stream")
	}
}
