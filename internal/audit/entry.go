package audit

import "github.com/ppiankov/busgate/internal/model"

// Entry is what a caller asks the log to record.
type Entry struct {
	Operation string
	Arguments map[string]any
	Verdict   model.Verdict
	Reason    string
	Category  string
}

// Record is one stored audit entry, hash-chained to its predecessor.
// Arguments are already sanitized. encoding/json sorts map keys, so a
// record's encoding (and therefore its hash) is deterministic.
type Record struct {
	Seq         uint64         `json:"seq"`
	Timestamp   string         `json:"ts"`
	InstanceID  string         `json:"instance_id,omitempty"`
	Operation   string         `json:"operation"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Verdict     model.Verdict  `json:"verdict"`
	Reason      string         `json:"reason,omitempty"`
	Category    string         `json:"category,omitempty"`
	CatalogHash string         `json:"catalog_hash,omitempty"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash,omitempty"`
}
