package bidding

import (
	"auction-marketplace/internal/biddingerrors"
	model "auction-marketplace/internal/models"
	"auction-marketplace/utils"
	"fmt"
	"time"
)

// standingCeiling is one registered auto-bid ceiling. Identical ceilings by
// the same bidder collapse onto the row that first registered them.
type standingCeiling struct {
	bidderID   string
	ceiling    int64
	registered int64 // Seq of the first row carrying this ceiling
}

// cascadeOutcome is the settled state after automatic counter-bidding
type cascadeOutcome struct {
	bids   []model.Bid // synthetic rows in the order they were produced
	leader model.Bid
}

// resolveCascade runs automatic counter-bids over rows, which must be the
// full bid ledger of one auction in Seq order including the bid that just
// took the lead. New rows get Seq values after lastSeq.
func resolveCascade(auctionID string, rows []model.Bid, lastSeq int64, now time.Time) (cascadeOutcome, error) {
	leader, ok := leadingBid(rows)
	if !ok {
		return cascadeOutcome{}, nil
	}

	ceilings := collectCeilings(rows)
	best := bestAmounts(rows)

	maxCeiling := leader.Amount
	for _, c := range ceilings {
		if c.ceiling > maxCeiling {
			maxCeiling = c.ceiling
		}
	}
	bound := (maxCeiling - leader.Amount) + int64(len(rows)) + 1

	out := cascadeOutcome{leader: leader}
	for step := int64(1); ; step++ {
		challenger, found := nextChallenger(ceilings, best, out.leader)
		if !found {
			return out, nil
		}
		if step > bound {
			return cascadeOutcome{}, fmt.Errorf("bidding: %w - auction %s after %d steps", biddingerrors.ErrCascadeInvariant, auctionID, step)
		}

		bidderID := challenger.bidderID
		amount := min(out.leader.Amount+1, challenger.ceiling)

		// The challenger would only draw level with a ceiling the leader
		// registered first; the leader takes it instead.
		if amount == challenger.ceiling {
			if own, ok := ceilingOf(ceilings, out.leader.BidderID, challenger.ceiling); ok && own.registered < challenger.registered {
				bidderID = out.leader.BidderID
			}
		}

		lastSeq++
		row := model.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			MaxBid:    challenger.ceiling,
			Seq:       lastSeq,
			CreatedAt: now,
		}
		out.bids = append(out.bids, row)
		out.leader = row
		best[bidderID] = max(best[bidderID], amount)
	}
}

// nextChallenger picks the standing ceiling that must answer the current
// lead: held by someone other than the leader, above the lead, and not
// already winning. Highest ceiling first, ties to the earliest registration.
func nextChallenger(ceilings []standingCeiling, best map[string]int64, leader model.Bid) (standingCeiling, bool) {
	var (
		pick  standingCeiling
		found bool
	)
	for _, c := range ceilings {
		if c.bidderID == leader.BidderID || c.ceiling <= leader.Amount || best[c.bidderID] >= leader.Amount {
			continue
		}
		if !found || c.ceiling > pick.ceiling || (c.ceiling == pick.ceiling && c.registered < pick.registered) {
			pick, found = c, true
		}
	}
	return pick, found
}

func ceilingOf(ceilings []standingCeiling, bidderID string, ceiling int64) (standingCeiling, bool) {
	for _, c := range ceilings {
		if c.bidderID == bidderID && c.ceiling == ceiling {
			return c, true
		}
	}
	return standingCeiling{}, false
}

func collectCeilings(rows []model.Bid) []standingCeiling {
	type key struct {
		bidderID string
		ceiling  int64
	}
	seen := make(map[key]int)

	var out []standingCeiling
	for _, b := range rows {
		if !b.IsAuto() {
			continue
		}
		k := key{b.BidderID, b.MaxBid}
		if i, ok := seen[k]; ok {
			if b.Seq < out[i].registered {
				out[i].registered = b.Seq
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, standingCeiling{bidderID: b.BidderID, ceiling: b.MaxBid, registered: b.Seq})
	}
	return out
}

func bestAmounts(rows []model.Bid) map[string]int64 {
	best := make(map[string]int64)
	for _, b := range rows {
		if b.Amount > best[b.BidderID] {
			best[b.BidderID] = b.Amount
		}
	}
	return best
}

// leadingBid returns the highest bid, ties going to the lowest Seq
func leadingBid(rows []model.Bid) (model.Bid, bool) {
	var (
		lead  model.Bid
		found bool
	)
	for _, b := range rows {
		if !found || b.Amount > lead.Amount || (b.Amount == lead.Amount && b.Seq < lead.Seq) {
			lead, found = b, true
		}
	}
	return lead, found
}
