package models

// BidKind tags which form a BidRequest takes.
type BidKind int

const (
	BidKindManual BidKind = iota + 1
	BidKindStanding
	BidKindDual
)

func (k BidKind) String() string {
	switch k {
	case BidKindManual:
		return "manual"
	case BidKindStanding:
		return "standing"
	case BidKindDual:
		return "dual"
	default:
		return "unknown"
	}
}

// BidRequest is either a manual bid for an exact amount, a standing ceiling,
// or both at once. Build it with ManualBid, StandingBid or DualBid.
type BidRequest struct {
	kind    BidKind
	amount  int64
	ceiling int64
}

// ManualBid requests a one-time bid for amount.
func ManualBid(amount int64) BidRequest {
	return BidRequest{kind: BidKindManual, amount: amount}
}

// StandingBid registers an auto-bid that escalates up to ceiling.
func StandingBid(ceiling int64) BidRequest {
	return BidRequest{kind: BidKindStanding, ceiling: ceiling}
}

// DualBid opens at amount and keeps escalating up to ceiling.
func DualBid(amount, ceiling int64) BidRequest {
	return BidRequest{kind: BidKindDual, amount: amount, ceiling: ceiling}
}

// NewBidRequest builds a request from optional wire fields, where zero means
// absent. The returned kind is zero when neither field is set.
func NewBidRequest(amount, ceiling int64) BidRequest {
	switch {
	case amount != 0 && ceiling != 0:
		return DualBid(amount, ceiling)
	case amount != 0:
		return ManualBid(amount)
	case ceiling != 0:
		return StandingBid(ceiling)
	default:
		return BidRequest{}
	}
}

func (r BidRequest) Kind() BidKind  { return r.kind }
func (r BidRequest) Amount() int64  { return r.amount }
func (r BidRequest) Ceiling() int64 { return r.ceiling }

// HasCeiling reports whether the request registers an auto-bid.
func (r BidRequest) HasCeiling() bool {
	return r.kind == BidKindStanding || r.kind == BidKindDual
}

// Valid reports whether the request has a usable shape, independent of the
// auction's current price.
func (r BidRequest) Valid() bool {
	switch r.kind {
	case BidKindManual:
		return r.amount > 0
	case BidKindStanding:
		return r.ceiling > 0
	case BidKindDual:
		return r.amount > 0 && r.ceiling >= r.amount
	default:
		return false
	}
}
