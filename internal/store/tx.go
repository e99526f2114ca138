package store

import (
	"context"
	"database/sql"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/model"
	"github.com/google/uuid"
)

type tx struct {
	tx *sql.Tx
}

func (t *tx) CreateUser(ctx context.Context, user model.User) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := t.tx.ExecContext(ctx, queryInsertUser,
		user.WalletAddr, user.FirstName, user.LastName, createdAt.UnixNano(),
	); err != nil {
		return storageError("create_user", err)
	}
	return nil
}

func (t *tx) UpdateUser(ctx context.Context, walletAddr string, update model.UserUpdate) error {
	res, err := t.tx.ExecContext(ctx, queryUpdateUser,
		nullString(update.FirstName), nullString(update.LastName), walletAddr,
	)
	if err != nil {
		return storageError("update_user", err)
	}
	return requireAffected(res, "user", walletAddr)
}

func (t *tx) DeleteUser(ctx context.Context, walletAddr string) error {
	if _, err := t.GetUser(ctx, walletAddr); err != nil {
		return err
	}
	return t.cascade(ctx, "delete_user", cascadeDeleteUser, walletAddr)
}

func (t *tx) GetUser(ctx context.Context, walletAddr string) (model.User, error) {
	user, err := scanUser(t.tx.QueryRowContext(ctx, querySelectUser, walletAddr))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, notFound("user", walletAddr)
	}
	if err != nil {
		return model.User{}, storageError("get_user", err)
	}
	return user, nil
}

func (t *tx) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := t.tx.QueryContext(ctx, queryListUsers)
	if err != nil {
		return nil, storageError("list_users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, storageError("list_users", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list_users", err)
	}
	return users, nil
}

func (t *tx) CreateMiner(ctx context.Context, walletAddr, name string) (model.Miner, error) {
	if _, err := t.GetUser(ctx, walletAddr); err != nil {
		return model.Miner{}, err
	}

	miner := model.Miner{
		ID:         uuid.NewString(),
		WalletAddr: walletAddr,
		Name:       name,
		CreatedAt:  time.Now(),
	}
	if _, err := t.tx.ExecContext(ctx, queryInsertMiner,
		miner.ID, miner.WalletAddr, miner.Name, miner.CreatedAt.UnixNano(),
	); err != nil {
		return model.Miner{}, storageError("create_miner", err)
	}
	return miner, nil
}

func (t *tx) GetMiner(ctx context.Context, id string) (model.Miner, error) {
	miner, err := scanMiner(t.tx.QueryRowContext(ctx, querySelectMiner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Miner{}, notFound("miner", id)
	}
	if err != nil {
		return model.Miner{}, storageError("get_miner", err)
	}
	return miner, nil
}

func (t *tx) ListMiners(ctx context.Context, walletAddr string) ([]model.Miner, error) {
	if _, err := t.GetUser(ctx, walletAddr); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, queryListMiners, walletAddr)
	if err != nil {
		return nil, storageError("list_miners", err)
	}
	defer rows.Close()

	var miners []model.Miner
	for rows.Next() {
		miner, err := scanMiner(rows)
		if err != nil {
			return nil, storageError("list_miners", err)
		}
		miners = append(miners, miner)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list_miners", err)
	}
	return miners, nil
}

func (t *tx) DeleteMiner(ctx context.Context, id string) error {
	if _, err := t.GetMiner(ctx, id); err != nil {
		return err
	}
	return t.cascade(ctx, "delete_miner", cascadeDeleteMiner, id)
}

func (t *tx) ListGPUs(ctx context.Context, minerID string) ([]model.GPU, error) {
	rows, err := t.tx.QueryContext(ctx, queryListGPUs, minerID)
	if err != nil {
		return nil, storageError("list_gpus", err)
	}
	defer rows.Close()

	var gpus []model.GPU
	for rows.Next() {
		var gpu model.GPU
		if err := rows.Scan(&gpu.MinerID, &gpu.GPUNo); err != nil {
			return nil, storageError("list_gpus", err)
		}
		gpus = append(gpus, gpu)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list_gpus", err)
	}
	return gpus, nil
}

func (t *tx) GetOrCreateGPU(ctx context.Context, minerID string, gpuNo int) (model.GPU, error) {
	if gpuNo < 0 {
		return model.GPU{}, errors.New().WithMessage(errors.ErrValidation, "gpu_no must not be negative")
	}

	if _, err := t.tx.ExecContext(ctx, queryInsertGPU, minerID, gpuNo); err != nil {
		return model.GPU{}, storageError("create_gpu", err)
	}

	var gpu model.GPU
	err := t.tx.QueryRowContext(ctx, querySelectGPU, minerID, gpuNo).Scan(&gpu.MinerID, &gpu.GPUNo)
	if err != nil {
		return model.GPU{}, storageError("get_gpu", err)
	}
	return gpu, nil
}

func (t *tx) AppendHealth(ctx context.Context, gpu model.GPU, sample model.HealthSample) error {
	if _, err := t.tx.ExecContext(ctx, queryInsertHealth,
		gpu.MinerID,
		gpu.GPUNo,
		sample.Time.UnixNano(),
		sample.Temperature,
		sample.PowerDraw,
		nullFloat(sample.PowerLimit),
		nullFloat(sample.FanSpeed),
		sample.Hashrate,
	); err != nil {
		return storageError("append_health", err)
	}
	return nil
}

func (t *tx) AppendShare(ctx context.Context, gpu model.GPU, sample model.ShareSample) error {
	if _, err := t.tx.ExecContext(ctx, queryInsertShare,
		gpu.MinerID,
		gpu.GPUNo,
		sample.Start.UnixNano(),
		sample.Valid,
		sample.Invalid,
		sample.Duration,
	); err != nil {
		return storageError("append_share", err)
	}
	return nil
}

func (t *tx) AppendUserStats(ctx context.Context, stats []model.UserStat) error {
	if len(stats) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, queryInsertUserStat)
	if err != nil {
		return storageError("prepare_user_stats", err)
	}
	defer stmt.Close()

	for _, stat := range stats {
		if _, err := stmt.ExecContext(ctx,
			stat.WalletAddr,
			stat.Time.UnixNano(),
			stat.Balance,
			stat.EstRevenue,
			stat.ValidShares,
			stat.StaleShares,
			stat.InvalidShares,
			nullFloat(stat.RoundSharePercent),
			stat.EffectiveHashrate,
		); err != nil {
			return storageError("append_user_stats", err)
		}
	}
	return nil
}

func (t *tx) LatestUserStat(ctx context.Context, walletAddr string) (model.UserStat, error) {
	stat, err := scanUserStat(t.tx.QueryRowContext(ctx, queryLatestUserStat, walletAddr))
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserStat{}, notFound("stats for user", walletAddr)
	}
	if err != nil {
		return model.UserStat{}, storageError("latest_user_stat", err)
	}
	return stat, nil
}

func (t *tx) ListUserStats(ctx context.Context, walletAddr string, window model.Window) ([]model.UserStat, error) {
	lo, hi := window.Bounds()
	rows, err := t.tx.QueryContext(ctx, queryListUserStats, walletAddr, lo, hi)
	if err != nil {
		return nil, storageError("list_user_stats", err)
	}
	defer rows.Close()

	var stats []model.UserStat
	for rows.Next() {
		stat, err := scanUserStat(rows)
		if err != nil {
			return nil, storageError("list_user_stats", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list_user_stats", err)
	}
	return stats, nil
}

func (t *tx) QueryHealth(ctx context.Context, minerID string, window model.Window) ([]model.HealthSample, error) {
	lo, hi := window.Bounds()
	rows, err := t.tx.QueryContext(ctx, queryHealthWindow, minerID, lo, hi)
	if err != nil {
		return nil, storageError("query_health", err)
	}
	defer rows.Close()

	var samples []model.HealthSample
	for rows.Next() {
		var (
			s          model.HealthSample
			ts         int64
			powerLimit sql.NullFloat64
			fanSpeed   sql.NullFloat64
		)
		if err := rows.Scan(&s.MinerID, &s.GPUNo, &ts, &s.Temperature, &s.PowerDraw,
			&powerLimit, &fanSpeed, &s.Hashrate); err != nil {
			return nil, storageError("query_health", err)
		}
		s.Time = time.Unix(0, ts).UTC()
		s.PowerLimit = floatPtr(powerLimit)
		s.FanSpeed = floatPtr(fanSpeed)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query_health", err)
	}
	return samples, nil
}

func (t *tx) QueryShares(ctx context.Context, minerID string, window model.Window) ([]model.ShareSample, error) {
	lo, hi := window.Bounds()
	rows, err := t.tx.QueryContext(ctx, querySharesWindow, minerID, lo, hi)
	if err != nil {
		return nil, storageError("query_shares", err)
	}
	defer rows.Close()

	var samples []model.ShareSample
	for rows.Next() {
		var (
			s  model.ShareSample
			ts int64
		)
		if err := rows.Scan(&s.MinerID, &s.GPUNo, &ts, &s.Valid, &s.Invalid, &s.Duration); err != nil {
			return nil, storageError("query_shares", err)
		}
		s.Start = time.Unix(0, ts).UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query_shares", err)
	}
	return samples, nil
}

func (t *tx) cascade(ctx context.Context, op string, statements []string, key string) error {
	for _, stmt := range statements {
		if _, err := t.tx.ExecContext(ctx, stmt, key); err != nil {
			return storageError(op, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (model.User, error) {
	var (
		user      model.User
		createdAt int64
	)
	if err := row.Scan(&user.WalletAddr, &user.FirstName, &user.LastName, &createdAt); err != nil {
		return model.User{}, err
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return user, nil
}

func scanMiner(row scanner) (model.Miner, error) {
	var (
		miner     model.Miner
		createdAt int64
	)
	if err := row.Scan(&miner.ID, &miner.WalletAddr, &miner.Name, &createdAt); err != nil {
		return model.Miner{}, err
	}
	miner.CreatedAt = time.Unix(0, createdAt).UTC()
	return miner, nil
}

func scanUserStat(row scanner) (model.UserStat, error) {
	var (
		stat       model.UserStat
		ts         int64
		roundShare sql.NullFloat64
	)
	if err := row.Scan(&stat.WalletAddr, &ts, &stat.Balance, &stat.EstRevenue,
		&stat.ValidShares, &stat.StaleShares, &stat.InvalidShares,
		&roundShare, &stat.EffectiveHashrate); err != nil {
		return model.UserStat{}, err
	}
	stat.Time = time.Unix(0, ts).UTC()
	stat.RoundSharePercent = floatPtr(roundShare)
	return stat, nil
}

func requireAffected(res sql.Result, what, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("rows_affected", err)
	}
	if n == 0 {
		return notFound(what, key)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
