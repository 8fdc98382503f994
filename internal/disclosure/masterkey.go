package disclosure

import (
	"time"

	"github.com/rawblock/idx-consortium-ledger/internal/cryptoadapter"
)

// CompanyKeyRotation is the maximum lifetime of an issued Company key
// half before a fresh one must be minted (§4.4: "at most every 24h").
const CompanyKeyRotation = 24 * time.Hour

// ReconstructMasterKey obtains RBI's permanent half, issues (or reuses,
// within CompanyKeyRotation) the Company's current half, and combines
// them into the global master key cipher via
// sha256(RBI_MASTER_KEY || COMPANY_KEY) — the split-key scheme modeled
// as two fixed halves (§4.4).
func ReconstructMasterKey(km *cryptoadapter.KeyManager) (*cryptoadapter.Cipher, error) {
	rbiHalf, err := km.Get(cryptoadapter.RBIMasterKey)
	if err != nil {
		return nil, err
	}
	companyHalf, err := km.GetOrCreate(cryptoadapter.CompanyKey)
	if err != nil {
		return nil, err
	}

	combined := cryptoadapter.Combine(rbiHalf, companyHalf)
	return cryptoadapter.NewCipher(combined), nil
}

// IssueCompanyKeyForOrder rotates the Company key half if the current
// one was issued more than CompanyKeyRotation ago, returning whether a
// fresh half was minted (for the audit log's KEY_GENERATION entry).
func IssueCompanyKeyForOrder(km *cryptoadapter.KeyManager, lastIssuedAt time.Time) (rotated bool, err error) {
	if time.Since(lastIssuedAt) < CompanyKeyRotation {
		if _, err := km.GetOrCreate(cryptoadapter.CompanyKey); err != nil {
			return false, err
		}
		return false, nil
	}
	if _, err := km.Rotate(cryptoadapter.CompanyKey); err != nil {
		return false, err
	}
	return true, nil
}
