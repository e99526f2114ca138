package store

import (
	"context"

	"codeberg.org/mutker/hashtop/internal/model"
)

// Store hands out transactions over the entity graph.
type Store interface {
	// WithTx runs fn inside one transaction, committing when fn returns nil
	// and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx defines the operations available inside a transaction.
type Tx interface {
	// Users
	CreateUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, walletAddr string, update model.UserUpdate) error
	DeleteUser(ctx context.Context, walletAddr string) error
	GetUser(ctx context.Context, walletAddr string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Miners and GPUs
	CreateMiner(ctx context.Context, walletAddr, name string) (model.Miner, error)
	GetMiner(ctx context.Context, id string) (model.Miner, error)
	ListMiners(ctx context.Context, walletAddr string) ([]model.Miner, error)
	DeleteMiner(ctx context.Context, id string) error
	ListGPUs(ctx context.Context, minerID string) ([]model.GPU, error)
	GetOrCreateGPU(ctx context.Context, minerID string, gpuNo int) (model.GPU, error)

	// Append-only samples
	AppendHealth(ctx context.Context, gpu model.GPU, sample model.HealthSample) error
	AppendShare(ctx context.Context, gpu model.GPU, sample model.ShareSample) error
	AppendUserStats(ctx context.Context, stats []model.UserStat) error

	// Queries
	LatestUserStat(ctx context.Context, walletAddr string) (model.UserStat, error)
	ListUserStats(ctx context.Context, walletAddr string, window model.Window) ([]model.UserStat, error)
	QueryHealth(ctx context.Context, minerID string, window model.Window) ([]model.HealthSample, error)
	QueryShares(ctx context.Context, minerID string, window model.Window) ([]model.ShareSample, error)
}
