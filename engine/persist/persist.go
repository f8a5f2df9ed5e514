// Package persist implements the persisted state layout of spec.md §6:
// "A snapshot is (bthread[*], externalQueue[*], daemon, nextAutoId);
// each b-thread serializes as (name, scope, continuation-opaque-bytes,
// currentStatement)". The continuation itself is delegated to the
// scripting host and treated as opaque bytes by the engine; here it is
// simply whatever byte blob the caller supplies (e.g. a trace replay
// cursor from engine/explore), never interpreted.
//
// Byte layout is manual little-endian field packing with a trailing
// CRC32 checksum, grounded on
// kernel/core/mesh/event_stream.go's MeshEventQueue header packing.
// The whole record is brotli-compressed before leaving the process,
// same as kernel/core/mesh's benchmark/test use of
// andybalholm/brotli, here used for real rather than just measured.
package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/nmxmxh/bp-runtime/engine/event"
)

// BThreadRecord is one b-thread's persisted shape.
type BThreadRecord struct {
	Name         string
	Scope        map[string]string // pre-rendered; the engine never interprets scope values
	Continuation []byte            // opaque
	Statement    string            // rendered Statement.String(), opaque to replay
}

// Snapshot is the persisted form of a program snapshot.
type Snapshot struct {
	BThreads      []BThreadRecord
	ExternalQueue []event.Event
	Daemon        bool
	NextAutoID    uint64
}

// Marshal serializes and brotli-compresses s.
func Marshal(s Snapshot) ([]byte, error) {
	var raw bytes.Buffer
	if err := writeUint32(&raw, uint32(len(s.BThreads))); err != nil {
		return nil, err
	}
	for _, bt := range s.BThreads {
		if err := writeBThread(&raw, bt); err != nil {
			return nil, fmt.Errorf("encoding bthread %q: %w", bt.Name, err)
		}
	}
	if err := writeUint32(&raw, uint32(len(s.ExternalQueue))); err != nil {
		return nil, err
	}
	for _, e := range s.ExternalQueue {
		if err := writeString(&raw, e.String()); err != nil {
			return nil, err
		}
	}
	if err := writeBool(&raw, s.Daemon); err != nil {
		return nil, err
	}
	if err := writeUint64(&raw, s.NextAutoID); err != nil {
		return nil, err
	}

	sum := crc32.ChecksumIEEE(raw.Bytes())
	if err := writeUint32(&raw, sum); err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	w := brotli.NewWriter(&compressed)
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing brotli writer: %w", err)
	}
	return compressed.Bytes(), nil
}

// Unmarshal decompresses and decodes a Marshal'd snapshot, verifying
// the trailing checksum before trusting the payload.
func Unmarshal(data []byte) (Snapshot, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	if len(raw) < 4 {
		return Snapshot{}, fmt.Errorf("snapshot payload too short")
	}
	body, wantSum := raw[:len(raw)-4], binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if gotSum := crc32.ChecksumIEEE(body); gotSum != wantSum {
		return Snapshot{}, fmt.Errorf("snapshot checksum mismatch: got %x want %x", gotSum, wantSum)
	}

	br := bytes.NewReader(body)
	var s Snapshot

	n, err := readUint32(br)
	if err != nil {
		return Snapshot{}, err
	}
	for i := uint32(0); i < n; i++ {
		bt, err := readBThread(br)
		if err != nil {
			return Snapshot{}, fmt.Errorf("decoding bthread %d: %w", i, err)
		}
		s.BThreads = append(s.BThreads, bt)
	}

	qn, err := readUint32(br)
	if err != nil {
		return Snapshot{}, err
	}
	for i := uint32(0); i < qn; i++ {
		name, err := readString(br)
		if err != nil {
			return Snapshot{}, err
		}
		s.ExternalQueue = append(s.ExternalQueue, event.Named(name))
	}

	daemon, err := readBool(br)
	if err != nil {
		return Snapshot{}, err
	}
	s.Daemon = daemon

	id, err := readUint64(br)
	if err != nil {
		return Snapshot{}, err
	}
	s.NextAutoID = id

	return s, nil
}

func writeBThread(w io.Writer, bt BThreadRecord) error {
	if err := writeString(w, bt.Name); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(bt.Scope))); err != nil {
		return err
	}
	for k, v := range bt.Scope {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(bt.Continuation))); err != nil {
		return err
	}
	if _, err := w.Write(bt.Continuation); err != nil {
		return err
	}
	return writeString(w, bt.Statement)
}

func readBThread(r io.Reader) (BThreadRecord, error) {
	var bt BThreadRecord
	name, err := readString(r)
	if err != nil {
		return bt, err
	}
	bt.Name = name

	scopeLen, err := readUint32(r)
	if err != nil {
		return bt, err
	}
	if scopeLen > 0 {
		bt.Scope = make(map[string]string, scopeLen)
	}
	for i := uint32(0); i < scopeLen; i++ {
		k, err := readString(r)
		if err != nil {
			return bt, err
		}
		v, err := readString(r)
		if err != nil {
			return bt, err
		}
		bt.Scope[k] = v
	}

	contLen, err := readUint32(r)
	if err != nil {
		return bt, err
	}
	if contLen > 0 {
		bt.Continuation = make([]byte, contLen)
		if _, err := io.ReadFull(r, bt.Continuation); err != nil {
			return bt, err
		}
	}

	stmt, err := readString(r)
	if err != nil {
		return bt, err
	}
	bt.Statement = stmt
	return bt, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeBool(w io.Writer, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}
