package audit

import "fmt"

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid      bool   `json:"valid"`
	Records    int    `json:"records"`
	Error      string `json:"error,omitempty"`
	ErrorIndex int    `json:"error_index,omitempty"`
}

// Verify checks a contiguous slice of records, as returned by Query.
// Every record's hash must match its content and reference its
// predecessor's hash. The first record is only tied to GenesisHash when it
// is the instance's first record (Seq 1); older records may have been
// truncated away.
func Verify(records []Record) VerifyResult {
	for i := range records {
		rec := records[i]
		want := rec.Hash
		if got := hashRecord(&rec); got != want {
			return VerifyResult{
				Error:      fmt.Sprintf("record seq %d: content hash %s does not match stored %s", records[i].Seq, got, want),
				ErrorIndex: i,
			}
		}

		switch {
		case i == 0 && records[i].Seq == 1:
			if records[i].PrevHash != GenesisHash {
				return VerifyResult{
					Error:      fmt.Sprintf("first record prev_hash is %q, expected genesis hash", records[i].PrevHash),
					ErrorIndex: 0,
				}
			}
		case i > 0:
			prev := records[i-1]
			if records[i].Seq != prev.Seq+1 {
				return VerifyResult{
					Error:      fmt.Sprintf("sequence gap: seq %d follows %d", records[i].Seq, prev.Seq),
					ErrorIndex: i,
				}
			}
			if records[i].PrevHash != prev.Hash {
				return VerifyResult{
					Error:      fmt.Sprintf("hash mismatch: expected %s, got %s", prev.Hash, records[i].PrevHash),
					ErrorIndex: i,
				}
			}
		}
	}
	return VerifyResult{Valid: true, Records: len(records)}
}
