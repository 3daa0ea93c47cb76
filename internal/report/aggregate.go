// Package report computes and renders per-affiliate tracking reports.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/period"
	"github.com/MICROWAVE-web/KazikPartnerStats/internal/storage"
)

// Stats is one aggregation bucket.
type Stats struct {
	Registrations int
	Deposits      int
	Reward        decimal.Decimal
}

// Aggregator reads the event store and groups events into report buckets.
type Aggregator struct {
	store *storage.Storage

	now func() time.Time // test hook
}

// NewAggregator creates an Aggregator over the store.
func NewAggregator(store *storage.Storage) *Aggregator {
	return &Aggregator{
		store: store,
		now:   time.Now,
	}
}

// Aggregate returns per-(campaign, btag) stats for the affiliate within the
// named period. An affiliate with no events in the window yields an empty
// map; an unknown period token falls back to all-time.
//
// Registrations and deposits are grouped separately and merged by key here,
// so a key present on only one side still appears with the other side
// zeroed (a full outer union on the grouping key).
func (a *Aggregator) Aggregate(affiliateID int64, token string) (map[storage.GroupKey]Stats, error) {
	w := period.Resolve(token, a.now())

	regs, err := a.store.GroupedRegistrations(affiliateID, w)
	if err != nil {
		return nil, err
	}

	deps, err := a.store.DepositRows(affiliateID, w)
	if err != nil {
		return nil, err
	}

	result := make(map[storage.GroupKey]Stats, len(regs))
	for key, n := range regs {
		result[key] = Stats{Registrations: n}
	}
	for _, d := range deps {
		key := storage.GroupKey{CampaignID: d.CampaignID, Btag: d.Btag}
		st := result[key]
		st.Deposits++
		st.Reward = st.Reward.Add(d.Reward)
		result[key] = st
	}

	return result, nil
}

// ByBtag collapses campaigns, leaving a flat btag -> stats view.
func ByBtag(m map[storage.GroupKey]Stats) map[string]Stats {
	flat := make(map[string]Stats, len(m))
	for key, st := range m {
		agg := flat[key.Btag]
		agg.Registrations += st.Registrations
		agg.Deposits += st.Deposits
		agg.Reward = agg.Reward.Add(st.Reward)
		flat[key.Btag] = agg
	}
	return flat
}

// ByCampaign groups the same stats as campaign -> btag -> stats.
func ByCampaign(m map[storage.GroupKey]Stats) map[string]map[string]Stats {
	nested := make(map[string]map[string]Stats)
	for key, st := range m {
		byBtag := nested[key.CampaignID]
		if byBtag == nil {
			byBtag = make(map[string]Stats)
			nested[key.CampaignID] = byBtag
		}
		byBtag[key.Btag] = st
	}
	return nested
}
