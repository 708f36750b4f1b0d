package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mrzor/compdb-tracer/internal/codec"
	"github.com/mrzor/compdb-tracer/internal/event"
)

// formatVersion is bumped on incompatible header changes.
const formatVersion = 1

type header struct {
	Version     int                     `cbor:"version"`
	SessionID   string                  `cbor:"session_id"`
	Incomplete  bool                    `cbor:"incomplete,omitempty"`
	MissingExit []event.ProcessIdentity `cbor:"missing_exit,omitempty"`
	Issues      map[uint32][]string     `cbor:"issues,omitempty"`
}

// Write encodes s to w.
func Write(w io.Writer, s *Session) error {
	data, err := codec.Marshal(header{
		Version:     formatVersion,
		SessionID:   s.ID,
		Incomplete:  s.Incomplete,
		MissingExit: s.MissingExit,
		Issues:      s.Issues,
	})
	if err != nil {
		return fmt.Errorf("encoding session header: %w", err)
	}
	if err := codec.WriteFrame(w, data); err != nil {
		return fmt.Errorf("writing session header: %w", err)
	}

	for _, r := range s.Records {
		if err := event.Write(w, r.Event); err != nil {
			return fmt.Errorf("writing event %d: %w", r.Seq, err)
		}
	}
	return nil
}

// Read decodes a session from r. Sequence numbers are reassigned from file
// order, which is receipt order.
func Read(r io.Reader) (*Session, error) {
	data, err := codec.ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("reading session header: %w", err)
	}
	var h header
	if err := codec.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decoding session header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported event log version %d", h.Version)
	}

	s := &Session{ID: h.SessionID, Incomplete: h.Incomplete, MissingExit: h.MissingExit, Issues: h.Issues}
	reader := event.NewReader(r)
	for seq := uint64(1); ; {
		e, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if errors.Is(err, event.ErrMalformedEvent) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading event %d: %w", seq, err)
		}
		s.Records = append(s.Records, Record{Seq: seq, Event: e})
		seq++
	}
}

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// WriteFile writes s to path, compressing when the name ends in ".zst".
func WriteFile(path string, s *Session) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating event log: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("closing event log: %w", closeErr)
		}
	}()

	buf := bufio.NewWriter(f)
	var w io.Writer = buf
	var enc *zstd.Encoder
	if compressed(path) {
		enc, err = zstd.NewWriter(buf)
		if err != nil {
			return fmt.Errorf("creating zstd encoder: %w", err)
		}
		w = enc
	}

	if err := Write(w, s); err != nil {
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finishing zstd stream: %w", err)
		}
	}
	return buf.Flush()
}

// ReadFile reads a session written by WriteFile.
func ReadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	var r io.Reader = bufio.NewReader(f)
	if compressed(path) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}
	return Read(r)
}
