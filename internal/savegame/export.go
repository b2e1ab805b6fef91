package savegame

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/tmacphail/suzerain/internal/command"
)

// Export format: a zstd stream over a little-endian binary frame.
//
//	magic    [4]byte  "SZSV"
//	version  uint16
//	scenario uint16-length-prefixed UTF-8
//	count    uint32
//	entries  count * (tick uint32, seq int64, kind uint16,
//	                  payload uint32-length-prefixed bytes)
//
// The frame carries exactly what replay needs. Sessions created from the
// same scenario produce identical frames for identical logs, so exports
// are byte-stable and diffable after decompression.
const (
	exportMagic   = "SZSV"
	exportVersion = 1
)

// ErrBadExport is returned when an import stream is not a valid export.
var ErrBadExport = errors.New("not a suzerain export")

// Allocation guards for counts read from an untrusted import stream: a
// corrupted header must provoke a short-read error, not a huge allocation.
const (
	importPrealloc   = 4096
	importMaxPayload = 1 << 20
)

// Export writes a session's scenario name and full command log to w as a
// compressed, portable save.
func (s *Store) Export(ctx context.Context, token string, w io.Writer) error {
	sess, err := s.GetSession(ctx, token)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	entries, err := s.ReadLog(ctx, token)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("export: create compressor: %w", err)
	}

	if err := writeFrame(zw, sess.Scenario, entries); err != nil {
		zw.Close()
		return fmt.Errorf("export: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("export: flush compressor: %w", err)
	}
	return nil
}

// Import reads an exported save from r and persists it as a new session,
// returning the new token. The log is stored verbatim; replaying it still
// requires loading the named scenario first.
func (s *Store) Import(ctx context.Context, r io.Reader) (string, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("import: create decompressor: %w", err)
	}
	defer zr.Close()

	scenario, entries, err := readFrame(zr)
	if err != nil {
		return "", fmt.Errorf("import: %w", err)
	}

	token, err := s.CreateSession(ctx, scenario)
	if err != nil {
		return "", fmt.Errorf("import: %w", err)
	}
	if err := s.AppendLog(ctx, token, entries); err != nil {
		return "", fmt.Errorf("import: %w", err)
	}

	return token, nil
}

func writeFrame(w io.Writer, scenario string, entries []command.LogEntry) error {
	if _, err := w.Write([]byte(exportMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(exportVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if len(scenario) > 0xFFFF {
		return fmt.Errorf("scenario name is %d bytes, max 65535", len(scenario))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(scenario))); err != nil {
		return fmt.Errorf("write scenario length: %w", err)
	}
	if _, err := w.Write([]byte(scenario)); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range entries {
		if err := binary.Write(w, binary.LittleEndian, e.Tick); err != nil {
			return fmt.Errorf("write entry tick: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, e.Seq); err != nil {
			return fmt.Errorf("write entry seq: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint16(e.Kind)); err != nil {
			return fmt.Errorf("write entry kind: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Payload))); err != nil {
			return fmt.Errorf("write payload length: %w", err)
		}
		if _, err := w.Write(e.Payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return nil
}

func readFrame(r io.Reader) (string, []command.LogEntry, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return "", nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != exportMagic {
		return "", nil, ErrBadExport
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return "", nil, fmt.Errorf("read version: %w", err)
	}
	if version != exportVersion {
		return "", nil, fmt.Errorf("unsupported export version %d", version)
	}

	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return "", nil, fmt.Errorf("read scenario length: %w", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return "", nil, fmt.Errorf("read scenario: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", nil, fmt.Errorf("read count: %w", err)
	}

	entries := make([]command.LogEntry, 0, min(count, importPrealloc))
	for i := uint32(0); i < count; i++ {
		var (
			entry      command.LogEntry
			kind       uint16
			payloadLen uint32
		)
		if err := binary.Read(r, binary.LittleEndian, &entry.Tick); err != nil {
			return "", nil, fmt.Errorf("read entry %d tick: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &entry.Seq); err != nil {
			return "", nil, fmt.Errorf("read entry %d seq: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return "", nil, fmt.Errorf("read entry %d kind: %w", i, err)
		}
		entry.Kind = command.Kind(kind)
		if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
			return "", nil, fmt.Errorf("read entry %d payload length: %w", i, err)
		}
		if payloadLen > importMaxPayload {
			return "", nil, fmt.Errorf("entry %d payload is %d bytes, max %d", i, payloadLen, importMaxPayload)
		}
		entry.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, entry.Payload); err != nil {
			return "", nil, fmt.Errorf("read entry %d payload: %w", i, err)
		}
		entries = append(entries, entry)
	}

	return string(name), entries, nil
}
