// Package snapshot writes versioned JSON files for downstream readers and CSV
// exports of predictions and accuracy history.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// SchemaVersion is stamped on every envelope.
const SchemaVersion = 1

// TimestampLayout is the envelope's compact timestamp.
const TimestampLayout = "20060102_1504"

// Snapshot file names.
const (
	Combined          = "combined.json"
	Weather           = "weather.json"
	Injuries          = "injuries.json"
	RefereeTrends     = "referee_trends.json"
	Predictions       = "predictions.json"
	HistoricalResults = "historical_results.json"
	PerformanceLog    = "performance_log.json"
	RunReport         = "run_report.json"
)

// ErrNotExist is returned when a snapshot has not been written yet.
var ErrNotExist = errors.New("snapshot does not exist")

// LeagueLatest names the per-league slate file.
func LeagueLatest(league string) string { return league + "_latest.json" }

// LeagueVenues names the per-league venue table.
func LeagueVenues(league string) string { return league + "_venues.json" }

// Envelope wraps every snapshot payload.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Timestamp     string          `json:"timestamp"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Count         int             `json:"count"`
	DataHash      string          `json:"data_hash"`
	Data          json.RawMessage `json:"data"`
}

// Writer writes snapshots into one directory.
type Writer struct {
	dir    string
	logger *zap.SugaredLogger
	now    func() time.Time

	// guards read-modify-write of the performance log
	mu sync.Mutex
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{
		dir:    dir,
		logger: logging.OrNop(logger).Named("snapshot").Sugar(),
		now:    time.Now,
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write stores data under name. It reports false without touching the file
// when the stored data is unchanged.
func (w *Writer) Write(name string, data any) (bool, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", name, err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	path := filepath.Join(w.dir, name)
	if prev, err := readHeader(path); err == nil && prev.DataHash == hash {
		w.logger.Debugf("%s unchanged", name)
		return false, nil
	}

	now := w.now().UTC()
	env := Envelope{
		SchemaVersion: SchemaVersion,
		Timestamp:     now.Format(TimestampLayout),
		GeneratedAt:   now,
		Count:         count(data),
		DataHash:      hash,
		Data:          raw,
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := atomicWrite(path, append(out, '\n')); err != nil {
		return false, fmt.Errorf("write %s: %w", name, err)
	}
	w.logger.Infof("✓ wrote %s (%d records)", name, env.Count)
	return true, nil
}

// AppendPerformance appends entry to the performance log snapshot.
func (w *Writer) AppendPerformance(entry *store.PerformanceEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var entries []*store.PerformanceEntry
	if _, err := NewReader(w.dir).Read(PerformanceLog, &entries); err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	entries = append(entries, entry)
	_, err := w.Write(PerformanceLog, entries)
	return err
}

// Reader reads snapshots from one directory.
type Reader struct {
	dir string
}

// NewReader creates a reader for dir.
func NewReader(dir string) *Reader { return &Reader{dir: dir} }

// Read decodes the payload of name into out and returns the envelope with
// Data still attached.
func (r *Reader) Read(name string, out any) (*Envelope, error) {
	path := filepath.Join(r.dir, name)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%s: schema version %d, want %d", name, env.SchemaVersion, SchemaVersion)
	}
	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", name, err)
		}
	}
	return &env, nil
}

func readHeader(path string) (*Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var env struct {
		DataHash string `json:"data_hash"`
	}
	if err := json.NewDecoder(f).Decode(&env); err != nil {
		return nil, err
	}
	return &Envelope{DataHash: env.DataHash}, nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func count(data any) int {
	if data == nil {
		return 0
	}
	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return 0
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len()
	default:
		return 1
	}
}
