// Package capture records the raw packets a session exchanges so a session
// can be inspected or replayed offline.
package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Direction of a captured packet.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

const (
	filePrefix = "packets"
	hourLayout = "2006-01-02-15"
)

// Record is one captured packet. Payload is kept as text so malformed input
// is captured verbatim.
type Record struct {
	At      time.Time `json:"at"`
	Dir     Direction `json:"dir"`
	Tick    int64     `json:"tick"`
	Kind    string    `json:"kind,omitempty"`
	Payload string    `json:"payload"`
}

// Recorder appends records to packets-YYYY-MM-DD-HH.jsonl.zst files in a
// directory. A record goes to the file of the hour in its At, so records
// stamped by another clock still land next to their neighbours.
type Recorder struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	seg *segment
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir, now: time.Now}
}

// FileName is the capture file holding records stamped within hour.
func FileName(hour time.Time) string {
	return fmt.Sprintf("%s-%s.jsonl.zst", filePrefix, hour.UTC().Format(hourLayout))
}

// Record appends rec, stamping it with the current time when At is zero.
func (r *Recorder) Record(rec Record) error {
	if rec.At.IsZero() {
		rec.At = r.now()
	}
	rec.At = rec.At.UTC()
	hour := rec.At.Format(hourLayout)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seg == nil || r.seg.hour != hour {
		if err := r.closeSegment(); err != nil {
			return err
		}
		seg, err := openSegment(r.dir, hour, FileName(rec.At))
		if err != nil {
			return fmt.Errorf("capture: open %s: %w", hour, err)
		}
		r.seg = seg
	}
	return r.seg.append(rec)
}

// Inbound records a packet as received, before decoding.
func (r *Recorder) Inbound(tick int64, payload []byte) error {
	return r.Record(Record{Dir: In, Tick: tick, Payload: string(payload)})
}

// Outbound records a packet as handed to the transport.
func (r *Recorder) Outbound(kind string, tick int64, payload []byte) error {
	return r.Record(Record{Dir: Out, Tick: tick, Kind: kind, Payload: string(payload)})
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeSegment()
}

func (r *Recorder) closeSegment() error {
	if r.seg == nil {
		return nil
	}
	err := r.seg.close()
	r.seg = nil
	return err
}

// segment is one open hourly file. Reopening an hour appends a new zstd
// frame.
type segment struct {
	hour string
	f    *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
	enc  *json.Encoder
}

func openSegment(dir, hour, name string) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	buf := bufio.NewWriter(zw)
	return &segment{hour: hour, f: f, zw: zw, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (s *segment) append(rec Record) error {
	if err := s.enc.Encode(rec); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.zw.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.f.Close())
}

// ListFiles returns the capture files in dir in chronological order.
func ListFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ErrStop may be returned by a ReadFile callback to end iteration early.
var ErrStop = errors.New("capture: stop")

// ReadFile calls fn for every record in a capture file, in order.
func ReadFile(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Read(f, fn)
}

// Read decodes zstd-compressed JSON lines from r.
func Read(r io.Reader, fn func(Record) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(rec); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return sc.Err()
}
