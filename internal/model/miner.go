package model

import "time"

// Miner is a mining worker owned by exactly one user.
type Miner struct {
	ID         string    `json:"id"`
	WalletAddr string    `json:"wallet_addr"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// GPU identifies a device by its index within one miner.
type GPU struct {
	MinerID string `json:"miner_id"`
	GPUNo   int    `json:"gpu_no"`
}
