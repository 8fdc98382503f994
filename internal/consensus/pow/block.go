package pow

import (
	"encoding/json"
	"strings"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
)

// BlockBody is the canonical, hashable body of a public-chain block.
// encoding/json emits struct fields in declaration order, so the fields
// are declared in lexicographic order of their JSON keys: index, nonce,
// previous_hash, timestamp, transactions.
type BlockBody struct {
	Index        int64    `json:"index"`
	Nonce        int64    `json:"nonce"`
	PreviousHash string   `json:"previous_hash"`
	Timestamp    float64  `json:"timestamp"`
	Transactions []string `json:"transactions"`
}

// Hash computes sha256(json(body)) in hex. encoding/json serializes
// struct fields with UTF-8 and no embedded whitespace variance, and the
// field declaration order above makes the keys come out sorted, so
// struct marshaling alone is canonical.
func (b BlockBody) Hash() string {
	data, _ := json.Marshal(b)
	return cryptoadapter.SHA256HexString(string(data))
}

// MeetsDifficulty reports whether hash begins with difficulty
// hexadecimal zero digits.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return strings.Count(hash[:difficulty], "0") == difficulty
}
