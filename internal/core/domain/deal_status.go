package domain

// DealStatus is the sale phase of a product.
//
//	UPCOMING -> ACTIVE       (start reached)
//	ACTIVE   -> SOLDOUT      (ledger exhausted)
//	ACTIVE   -> ENDED        (end reached)
//
// SOLDOUT and ENDED are terminal.
type DealStatus string

const (
	DealStatusUpcoming DealStatus = "UPCOMING"
	DealStatusActive   DealStatus = "ACTIVE"
	DealStatusSoldOut  DealStatus = "SOLDOUT"
	DealStatusEnded    DealStatus = "ENDED"
)

var dealTransitions = map[DealStatus][]DealStatus{
	DealStatusUpcoming: {DealStatusActive},
	DealStatusActive:   {DealStatusSoldOut, DealStatusEnded},
}

func ParseDealStatus(s string) (DealStatus, error) {
	switch st := DealStatus(s); st {
	case DealStatusUpcoming, DealStatusActive, DealStatusSoldOut, DealStatusEnded:
		return st, nil
	}
	return "", invalid("dealStatus", "unknown value "+s)
}

func (s DealStatus) CanTransitionTo(target DealStatus) bool {
	for _, allowed := range dealTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s DealStatus) AllowedTransitions() []DealStatus {
	out := make([]DealStatus, len(dealTransitions[s]))
	copy(out, dealTransitions[s])
	return out
}

func (s DealStatus) Terminal() bool {
	return len(dealTransitions[s]) == 0
}
