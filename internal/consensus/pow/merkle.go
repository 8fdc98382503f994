package pow

import "github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"

// MerkleTree builds a binary Merkle tree over the canonical records of
// a batch's transactions. Leaf = sha256 of the record; internal =
// sha256(left||right); an odd trailing leaf is duplicated rather than
// promoted, so every level has an even width until the root.
func MerkleTree(leaves []string) (root string, levels [][]string) {
	if len(leaves) == 0 {
		return "", nil
	}
	level := make([]string, len(leaves))
	for i, l := range leaves {
		level[i] = cryptoadapter.SHA256HexString(l)
	}
	levels = append(levels, level)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, cryptoadapter.SHA256HexString(level[i]+level[i+1]))
		}
		level = next
		levels = append(levels, level)
	}
	return level[0], levels
}
