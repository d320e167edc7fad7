// protocol.go reads request frames off the wire.
//
// Frame Layout
// ============
//
// A request is a single command line, zero or more data lines, and a blank
// line that terminates the frame:
//
//	CHARGECARD
//	Currency: EUR
//	Amount: 10.42
//	Card-Token: tok_1Abc
//	<blank>
//
// Each data line is "Name: value". A line that starts with a space or tab
// continues the previous field's value: the single leading whitespace byte
// is dropped and the remainder is appended after a newline, so multi-line
// values survive the trip through the folding writer in responses.go and
// back.
//
// Line Discipline
// ===============
//
// Lines are LF-terminated; a CR before the LF is tolerated and stripped, so
// clients on either line convention work. Every line is subject to the
// configured length bound. The bound exists because a single request is
// read into memory in full: without it, one peer could balloon the daemon's
// heap with an endless header line.
//
// Failure Taxonomy
// ================
//
// The reader distinguishes four failures so the server can answer each with
// its own wire code: a line over the bound (ErrTruncated), a stream that
// dies inside a frame (ErrUnexpectedEOF), a data line whose name starts
// with anything but an ASCII letter (ErrInvalidName), and every other
// malformation (ErrProtocolViolation): a missing colon, a duplicate field
// name, or a continuation line with no field before it. A clean disconnect
// before the first byte of a request is not a failure at all; it surfaces
// as io.EOF and the server just logs the hangup.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"payd.lopezb.com/internal/payd/dict"
)

// DefaultMaxLineLen bounds a single request line when the configuration
// does not say otherwise.
const DefaultMaxLineLen = 2048

var (
	// ErrTruncated reports a line over the configured length bound.
	ErrTruncated = errors.New("line exceeds maximum length")

	// ErrUnexpectedEOF reports a stream that ended inside a frame.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")

	// ErrProtocolViolation reports a malformed data line.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrInvalidName reports a data line whose field name does not start
	// with an ASCII letter.
	ErrInvalidName = errors.New("invalid field name")
)

// Reader decodes request frames from a stream.
type Reader struct {
	br      *bufio.Reader
	maxLine int
}

// NewReader wraps r. maxLine bounds each request line; zero or negative
// selects DefaultMaxLineLen.
func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLen
	}
	return &Reader{
		br:      bufio.NewReaderSize(r, 4096),
		maxLine: maxLine,
	}
}

// ReadRequest reads one complete frame: the raw command line and the parsed
// data lines. io.EOF means the peer disconnected cleanly before sending
// anything; every other error is one of the sentinels above (or a transport
// error from the underlying reader).
func (rd *Reader) ReadRequest() (string, *dict.Dict, error) {
	cmdLine, err := rd.readLine()
	if err != nil {
		return "", nil, err
	}

	d := dict.New()
	for {
		line, err := rd.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil, fmt.Errorf("%w: stream ended inside a request", ErrUnexpectedEOF)
			}
			return "", nil, err
		}

		// Blank line: frame complete.
		if len(line) == 0 {
			return cmdLine, d, nil
		}

		// Continuation line: one leading whitespace byte is the marker and
		// is consumed; everything after it, second space included, belongs
		// to the value.
		if line[0] == ' ' || line[0] == '\t' {
			if err := d.ExtendLast(line[1:]); err != nil {
				return "", nil, fmt.Errorf("%w: continuation line without a preceding field", ErrProtocolViolation)
			}
			continue
		}

		if !isASCIILetter(line[0]) {
			return "", nil, fmt.Errorf("%w: line starts with %q", ErrInvalidName, line[0])
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			return "", nil, fmt.Errorf("%w: data line without a colon", ErrProtocolViolation)
		}

		name = dict.CanonicalName(strings.TrimRight(name, " \t"))
		value = strings.TrimLeft(value, " \t")
		if err := d.Append(name, value); err != nil {
			return "", nil, fmt.Errorf("%w: duplicate field %q", ErrProtocolViolation, name)
		}
	}
}

// readLine reads one line, stripping the LF and an optional preceding CR.
// The common case is a line that fits the bufio buffer in one piece and
// costs a single copy; oversized buffers are accumulated chunk by chunk so
// the length bound is enforced before the whole line is in memory.
func (rd *Reader) readLine() (string, error) {
	var long []byte
	for {
		chunk, isPrefix, err := rd.br.ReadLine()
		if err != nil {
			if len(long) > 0 && errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: stream ended mid-line", ErrUnexpectedEOF)
			}
			return "", err
		}

		if len(long)+len(chunk) > rd.maxLine {
			return "", ErrTruncated
		}

		if long == nil && !isPrefix {
			return string(chunk), nil
		}

		long = append(long, chunk...)
		if !isPrefix {
			return string(long), nil
		}
	}
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
