// Package journal implements the append-only audit journal.
//
// Every completed charge and every applied exchange-rate change produces one
// line in a plain text file. The journal is the daemon's system of record
// for reconciliation: the books are rebuilt from it, so a charge that is not
// journaled did not happen as far as accounting is concerned.
//
// Record Format
// =============
//
// One record per line, fields separated by colons:
//
//	20260823T101500:charge:card:f:EUR:1042:ch_9f2a:donor@example.org:July donation
//	20260823T110000:rate:USD:1.0772
//
// The first two fields are always the UTC timestamp and the record type;
// the rest depend on the type. Free-text fields (email, description) are
// sanitized on the way in: colons and line breaks become spaces, so a line
// always holds exactly one record and splits cleanly on ':'.
//
// Durability
// ==========
//
// Writes land in a RAM buffer guarded by a mutex; the maintenance loop in
// the server calls Fsync on a one-second ticker to push them to the physical
// disk. A crash can therefore cost at most the last second of records, the
// same trade-off the rest of the daemon's persistence makes.

package journal

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"payd.lopezb.com/internal/payd/dict"
)

// TimeFormat is the compact UTC timestamp layout used in journal records and
// in the _timestamp response field.
const TimeFormat = "20060102T150405"

// Service tags identify which payment backend produced a charge record.
const (
	ServiceCard   = "card"
	ServicePayPal = "paypal"
)

type Journal struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// Open opens (or creates) the journal file for appending. The file is
// created owner-only: it contains customer email addresses.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &Journal{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Timestamp renders t in the journal's UTC layout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// RecordCharge appends a charge record built from the request dictionary.
// The caller tags the originating backend with one of the Service constants.
// Fields that the request never carried simply stay empty in the record.
func (j *Journal) RecordCharge(d *dict.Dict, service string) error {
	ts := d.Get("_timestamp")
	if ts == "" {
		ts = Timestamp(time.Now())
	}

	fields := []string{
		ts,
		"charge",
		service,
		d.Get("Live"),
		strings.ToUpper(d.Get("Currency")),
		d.Get("_amount"),
		d.Get("Charge-Id"),
		d.Get("Email"),
		d.Get("Desc"),
	}

	return j.append(fields)
}

// RecordRateChange appends a rate record. The rates reloader calls this
// before each table entry it replaces.
func (j *Journal) RecordRateChange(code string, rate float64) error {
	fields := []string{
		Timestamp(time.Now()),
		"rate",
		code,
		strconv.FormatFloat(rate, 'f', -1, 64),
	}

	return j.append(fields)
}

func (j *Journal) append(fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(sanitize(f))
	}
	b.WriteByte('\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	// The record lands in the RAM buffer; the background fsync ticker is
	// responsible for pushing it to disk.
	_, err := j.writer.WriteString(b.String())
	return err
}

// Fsync flushes the buffer to the OS and forces the OS to commit the file
// to the physical disk.
func (j *Journal) Fsync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Close flushes any buffered records and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// sanitize keeps a field from breaking the one-record-per-line format:
// the separator and line breaks are replaced with spaces.
func sanitize(s string) string {
	if !strings.ContainsAny(s, ":\r\n") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '\r', '\n':
			return ' '
		}
		return r
	}, s)
}
