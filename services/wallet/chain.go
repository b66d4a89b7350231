package wallet

import (
	"context"

	"cashback-controlplane/pkg/db/option"
	"cashback-controlplane/pkg/errutil"
)

type ChainReport struct {
	OwnerID        string `json:"owner_id"`
	Valid          bool   `json:"valid"`
	Checked        int    `json:"checked"`
	BrokenAt       int64  `json:"broken_at,string,omitempty"`
	BalanceMatches bool   `json:"balance_matches"`
}

// VerifyChain recomputes the hash chain of the owner's wallet transactions
// and checks the replayed balance against the stored one.
func (s *Service) VerifyChain(ctx context.Context, ownerID string) (*ChainReport, error) {
	w, err := s.GetWallet(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	walletID := w.ID
	txns, err := s.txns.Find(ctx, &Transaction{WalletID: &walletID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "id",
		OrderBy: "asc",
		Allow:   map[string]bool{"id": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to load transactions", err)
	}

	report := &ChainReport{OwnerID: ownerID, Valid: true}
	prev := genesisHash
	var balance int64
	for _, t := range txns {
		if t.PreviousHash != prev || t.Hash != t.GenerateHash() {
			report.Valid = false
			report.BrokenAt = t.ID
			return report, nil
		}
		switch t.Direction {
		case DirectionCredit:
			balance += t.AmountPaise
		case DirectionDebit:
			balance -= t.AmountPaise
		}
		prev = t.Hash
		report.Checked++
	}

	report.BalanceMatches = balance == w.AvailablePaise
	return report, nil
}
