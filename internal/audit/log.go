package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/redact"
)

// GenesisHash is the prev_hash of the first record an instance writes.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// DefaultCapacity is the high-water mark above which the log is halved.
const DefaultCapacity = 10000

const timeFormat = "2006-01-02T15:04:05.000Z"

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets the high-water mark. Values below 2 are raised to 2.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n < 2 {
			n = 2
		}
		l.capacity = n
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithInstanceID stamps every record with the owning engine's ID.
func WithInstanceID(id string) Option {
	return func(l *Log) { l.instanceID = id }
}

// WithCatalogHash stamps every record with the catalog in force.
func WithCatalogHash(hash string) Option {
	return func(l *Log) { l.catalogHash = hash }
}

// WithRedactKeys adds argument names to redact beyond redact.SensitiveKeys.
func WithRedactKeys(keys []string) Option {
	return func(l *Log) { l.extraKeys = append([]string(nil), keys...) }
}

// WithLogger logs security-relevant records as they are appended.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Log is a bounded, in-memory, append-only audit trail.
// Records are hash-chained in append order. When the log grows past its
// capacity it keeps only the most recent half, preserving order.
// Appending never blocks on I/O and never fails.
type Log struct {
	mu          sync.Mutex
	records     []Record
	capacity    int
	seq         uint64
	prevHash    string
	now         func() time.Time
	instanceID  string
	catalogHash string
	extraKeys   []string
	logger      *zap.Logger
	truncations int
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		prevHash: GenesisHash,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry for one operation and returns the stored record.
func (l *Log) Record(op string, args map[string]any, verdict model.Verdict) Record {
	return l.Append(Entry{Operation: op, Arguments: args, Verdict: verdict})
}

// Append sanitizes and stores an entry. The stored arguments are a deep
// copy; the caller's map and anything nested in it are neither modified nor
// retained.
func (l *Log) Append(e Entry) Record {
	args := detach(redact.Map(e.Arguments, l.extraKeys))

	l.mu.Lock()
	l.seq++
	rec := Record{
		Seq:         l.seq,
		Timestamp:   l.now().UTC().Format(timeFormat),
		InstanceID:  l.instanceID,
		Operation:   e.Operation,
		Arguments:   args,
		Verdict:     e.Verdict,
		Reason:      e.Reason,
		Category:    e.Category,
		CatalogHash: l.catalogHash,
		PrevHash:    l.prevHash,
	}
	rec.Hash = hashRecord(&rec)
	l.prevHash = rec.Hash

	l.records = append(l.records, rec)
	if len(l.records) > l.capacity {
		keep := l.capacity / 2
		l.records = append([]Record(nil), l.records[len(l.records)-keep:]...)
		l.truncations++
	}
	l.mu.Unlock()

	switch e.Verdict {
	case model.Forbidden, model.RateLimited:
		l.logger.Warn("security event",
			zap.String("verdict", string(e.Verdict)),
			zap.String("operation", e.Operation),
			zap.String("reason", e.Reason),
			zap.Uint64("seq", rec.Seq))
	}
	return clone(rec)
}

// Query returns up to limit of the most recent records, oldest first.
// A limit of zero or less returns every retained record.
func (l *Log) Query(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if limit > 0 && limit < len(l.records) {
		start = len(l.records) - limit
	}
	out := make([]Record, 0, len(l.records)-start)
	for _, rec := range l.records[start:] {
		out = append(out, clone(rec))
	}
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Capacity returns the high-water mark.
func (l *Log) Capacity() int {
	return l.capacity
}

// Truncations returns how many times the log has been halved.
func (l *Log) Truncations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.truncations
}

// detach returns a deep copy of args made of JSON values only: maps, slices,
// strings, bools, json.Number and nil. Numbers keep their exact text so the
// copy hashes like the original. Unencodable arguments are replaced.
func detach(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return map[string]any{"_error": "arguments not encodable"}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return map[string]any{"_error": "arguments not encodable"}
	}
	return out
}

// clone copies a stored record so callers cannot reach the log's memory.
func clone(rec Record) Record {
	if rec.Arguments != nil {
		rec.Arguments = cloneValue(rec.Arguments).(map[string]any)
	}
	return rec
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// hashRecord returns the chain hash of rec, computed over its JSON encoding
// with the Hash field cleared. Arguments that cannot be encoded are replaced
// so that recording still succeeds.
func hashRecord(rec *Record) string {
	rec.Hash = ""
	line, err := json.Marshal(rec)
	if err != nil {
		rec.Arguments = map[string]any{"_error": "arguments not encodable"}
		line, _ = json.Marshal(rec)
	}
	return HashLine(line)
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
