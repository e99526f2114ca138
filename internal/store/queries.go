package store

// SQL statements used by the repository.
const (
	queryInsertUser = `
INSERT INTO users (wallet_addr, fname, lname, created_at)
VALUES (?, ?, ?, ?)`

	queryUpdateUser = `
UPDATE users
SET fname = COALESCE(?, fname),
    lname = COALESCE(?, lname)
WHERE wallet_addr = ?`

	querySelectUser = `
SELECT wallet_addr, fname, lname, created_at
FROM users
WHERE wallet_addr = ?`

	queryListUsers = `
SELECT wallet_addr, fname, lname, created_at
FROM users
ORDER BY wallet_addr`

	queryInsertMiner = `
INSERT INTO miners (id, wallet_addr, name, created_at)
VALUES (?, ?, ?, ?)`

	querySelectMiner = `
SELECT id, wallet_addr, name, created_at
FROM miners
WHERE id = ?`

	queryListMiners = `
SELECT id, wallet_addr, name, created_at
FROM miners
WHERE wallet_addr = ?
ORDER BY created_at, id`

	queryListGPUs = `
SELECT miner_id, gpu_no
FROM gpus
WHERE miner_id = ?
ORDER BY gpu_no`

	// queryInsertGPU is a no-op when the GPU already exists, so concurrent
	// get-or-create calls converge on a single row.
	queryInsertGPU = `
INSERT INTO gpus (miner_id, gpu_no)
VALUES (?, ?)
ON CONFLICT (miner_id, gpu_no) DO NOTHING`

	querySelectGPU = `
SELECT miner_id, gpu_no
FROM gpus
WHERE miner_id = ? AND gpu_no = ?`

	queryInsertHealth = `
INSERT INTO health (miner_id, gpu_no, time, temperature, power_draw, power_limit, fan_speed, hashrate)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertShare = `
INSERT INTO shares (miner_id, gpu_no, start, valid, invalid, duration_s)
VALUES (?, ?, ?, ?, ?, ?)`

	queryInsertUserStat = `
INSERT INTO user_stats (
    wallet_addr, time, balance, est_revenue,
    valid_shares, stale_shares, invalid_shares,
    round_share_percent, effective_hashrate
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryLatestUserStat = `
SELECT wallet_addr, time, balance, est_revenue, valid_shares, stale_shares,
       invalid_shares, round_share_percent, effective_hashrate
FROM user_stats
WHERE wallet_addr = ?
ORDER BY time DESC
LIMIT 1`

	queryListUserStats = `
SELECT wallet_addr, time, balance, est_revenue, valid_shares, stale_shares,
       invalid_shares, round_share_percent, effective_hashrate
FROM user_stats
WHERE wallet_addr = ? AND time BETWEEN ? AND ?
ORDER BY time`

	queryHealthWindow = `
SELECT miner_id, gpu_no, time, temperature, power_draw, power_limit, fan_speed, hashrate
FROM health
WHERE miner_id = ? AND time BETWEEN ? AND ?
ORDER BY time, gpu_no`

	querySharesWindow = `
SELECT miner_id, gpu_no, start, valid, invalid, duration_s
FROM shares
WHERE miner_id = ? AND start BETWEEN ? AND ?
ORDER BY start, gpu_no`
)

// Cascades run child-first so no statement ever leaves an orphan behind,
// even with foreign key enforcement switched off.
var (
	cascadeDeleteUser = []string{
		`DELETE FROM health WHERE miner_id IN (SELECT id FROM miners WHERE wallet_addr = ?)`,
		`DELETE FROM shares WHERE miner_id IN (SELECT id FROM miners WHERE wallet_addr = ?)`,
		`DELETE FROM gpus WHERE miner_id IN (SELECT id FROM miners WHERE wallet_addr = ?)`,
		`DELETE FROM miners WHERE wallet_addr = ?`,
		`DELETE FROM user_stats WHERE wallet_addr = ?`,
		`DELETE FROM users WHERE wallet_addr = ?`,
	}

	cascadeDeleteMiner = []string{
		`DELETE FROM health WHERE miner_id = ?`,
		`DELETE FROM shares WHERE miner_id = ?`,
		`DELETE FROM gpus WHERE miner_id = ?`,
		`DELETE FROM miners WHERE id = ?`,
	}
)
