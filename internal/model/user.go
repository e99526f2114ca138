package model

import "time"

// User is keyed by wallet address and owns miners and stat snapshots.
type User struct {
	WalletAddr string    `json:"wallet_addr" validate:"required,eth_addr"`
	FirstName  string    `json:"fname" validate:"max=128"`
	LastName   string    `json:"lname" validate:"max=128"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserUpdate carries a partial update; nil fields are left untouched.
type UserUpdate struct {
	FirstName *string `json:"fname,omitempty" validate:"omitempty,max=128"`
	LastName  *string `json:"lname,omitempty" validate:"omitempty,max=128"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil
}

// UserStat is a point-in-time snapshot of a user's standing at the pool.
type UserStat struct {
	WalletAddr        string    `json:"wallet_addr"`
	Time              time.Time `json:"time"`
	Balance           float64   `json:"balance"`
	EstRevenue        float64   `json:"est_revenue"`
	ValidShares       int64     `json:"valid_shares"`
	StaleShares       int64     `json:"stale_shares"`
	InvalidShares     int64     `json:"invalid_shares"`
	RoundSharePercent *float64  `json:"round_share_percent"`
	EffectiveHashrate float64   `json:"effective_hashrate"`
}
