// Package av
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-14
package av

import (
	"errors"
	"fmt"
)

// Kind classifies failures of the remux, decode and transform pipelines.
// A Kind is itself an error so it can be matched with errors.Is.
type Kind uint8

const (
	IOError Kind = iota + 1
	DemuxError
	UnsupportedStreamShape
	NoVideoStream
	UnsupportedCodec
	DecodeError
	MuxError
	ConversionUnsupported
	AllocationError
	InvalidResolution
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "io error"
	case DemuxError:
		return "demux error"
	case UnsupportedStreamShape:
		return "unsupported stream shape"
	case NoVideoStream:
		return "no video stream"
	case UnsupportedCodec:
		return "unsupported codec"
	case DecodeError:
		return "decode error"
	case MuxError:
		return "mux error"
	case ConversionUnsupported:
		return "conversion unsupported"
	case AllocationError:
		return "allocation error"
	case InvalidResolution:
		return "invalid resolution"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Error() string {
	return "av: " + k.String()
}

var (
	// ErrAgain is returned by VideoDecoder.ReceiveFrame when more input is needed.
	ErrAgain = errors.New("av: resource temporarily unavailable")

	// ErrReleased is returned when reading from a cursor whose region was released.
	ErrReleased = errors.New("av: byte region released")
)

// Error is a classified failure with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// E wraps err into an Error of the given kind. An err that already carries a kind keeps it.
func E(kind Kind, op string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error of the given kind from a format string.
func Errorf(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind carried by err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
