package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

// Error is an error annotated with a message and the stack where it was
// created.
type Error struct {
	Message string
	Wrapped error
	Stack   CallStack
}

func New(wrapped error, format string, args ...any) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   traceFrom(1),
	}
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return e.Message + ": " + e.Wrapped.Error()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.Str("file", f.File).Int("line", f.Line).Str("function", f.Function)
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

// Trace captures the caller's stack.
func Trace() CallStack {
	return traceFrom(1)
}

func traceFrom(skip int) CallStack {
	trace := stack.Trace().TrimRuntime()
	// one more for traceFrom itself
	if len(trace) > skip+1 {
		trace = trace[skip+1:]
	}

	frames := make(CallStack, 0, len(trace))
	for _, call := range trace {
		f := call.Frame()
		frames = append(frames, StackFrame{File: f.File, Line: f.Line, Function: f.Function})
	}
	return frames
}

// StackOf digs through err's chain for the deepest *Error, which is the one
// closest to where things actually went wrong. It returns nil if there is
// none.
func StackOf(err error) CallStack {
	var found CallStack
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		found = e.Stack
		err = e.Wrapped
	}
	return found
}

var ZerologStackMarshaler = func(err error) any {
	if s := StackOf(err); s != nil {
		return s
	}
	return nil
}
