package ledger

// FeeRates are the percentage-of-amount fee components, overridable via
// POW_MINER_FEE_RATE and BANK_CONSENSUS_FEE_RATE at startup.
type FeeRates struct {
	MinerFeeRate float64
	BankFeeRate  float64
}

// DefaultFeeRates matches the fee schedule: miner_fee = 0.5%, bank_fee = 1%.
var DefaultFeeRates = FeeRates{MinerFeeRate: 0.005, BankFeeRate: 0.010}

// Compute returns (miner_fee, bank_fee, total_fee) for an amount.
func (r FeeRates) Compute(amount float64) (minerFee, bankFee, fee float64) {
	minerFee = r.MinerFeeRate * amount
	bankFee = r.BankFeeRate * amount
	return minerFee, bankFee, minerFee + bankFee
}
