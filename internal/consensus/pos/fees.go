package pos

// SplitDomesticFee divides bank_fee equally across every bank that
// validated the batch (the full consortium roster it was run against,
// regardless of individual vote — the fee rewards participation in
// validation, not the vote outcome).
func SplitDomesticFee(bankFee float64, validatingBanks []string) map[string]float64 {
	shares := make(map[string]float64, len(validatingBanks))
	if len(validatingBanks) == 0 {
		return shares
	}
	each := bankFee / float64(len(validatingBanks))
	for _, bankCode := range validatingBanks {
		shares[bankCode] += each
	}
	return shares
}

// SplitTravelFee divides bank_fee equally between the sender's and
// receiver's banks only.
func SplitTravelFee(bankFee float64, senderBank, receiverBank string) map[string]float64 {
	half := bankFee / 2
	shares := map[string]float64{}
	shares[senderBank] += half
	shares[receiverBank] += half
	return shares
}
