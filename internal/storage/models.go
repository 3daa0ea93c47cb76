package storage

import "github.com/shopspring/decimal"

// Event types. Events carry a reward snapshot only for first deposits.
const (
	EventRegistration = "registration"
	EventFirstDep     = "first_dep"
)

// CampaignReward overrides an affiliate's default reward for one campaign.
type CampaignReward struct {
	AffiliateID int64
	CampaignID  string
	Reward      decimal.Decimal
}

// GroupKey is the aggregation key. Empty strings are the untagged bucket.
type GroupKey struct {
	CampaignID string
	Btag       string
}

// DepositRow is one first_dep event as read back for aggregation.
type DepositRow struct {
	CampaignID string
	Btag       string
	Reward     decimal.Decimal
}
