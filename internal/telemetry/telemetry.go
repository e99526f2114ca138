package telemetry

import (
	"context"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/validation"
)

type service struct {
	store store.Store
	cfg   Config
	log   logger.Logger
}

func NewService(s store.Store, cfg Config, log logger.Logger) (Ingester, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if cfg.Clock == nil {
		cfg.Clock = DefaultConfig().Clock
	}

	return &service{
		store: s,
		cfg:   cfg,
		log:   log,
	}, nil
}

// RecordHealth stamps every reading with the service clock and appends it
// under its GPU, creating GPUs on first sight. The batch commits as a whole.
func (s *service) RecordHealth(ctx context.Context, minerID string, readings []Reading) error {
	if err := s.checkBatch(len(readings)); err != nil {
		return s.fail("health", minerID, err)
	}
	if err := validation.Struct(healthBatch{Readings: readings}); err != nil {
		return s.fail("health", minerID, err)
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetMiner(ctx, minerID); err != nil {
			return err
		}

		// One timestamp per batch: the readings describe the same instant.
		now := s.cfg.Clock().UTC()
		for _, r := range readings {
			gpu, err := tx.GetOrCreateGPU(ctx, minerID, r.GPUNo)
			if err != nil {
				return err
			}

			if err := tx.AppendHealth(ctx, gpu, model.HealthSample{
				Time:        now,
				Temperature: r.Temperature,
				PowerDraw:   r.Power,
				PowerLimit:  r.PowerLimit,
				FanSpeed:    r.FanSpeed,
				Hashrate:    r.Hashrate,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.fail("health", minerID, err)
	}

	metrics.IngestBatches.WithLabelValues("health", "committed").Inc()
	metrics.IngestReadings.WithLabelValues("health").Add(float64(len(readings)))

	s.log.Debug().
		Str("miner_id", minerID).
		Int("readings", len(readings)).
		Msg("Health batch recorded")

	return nil
}

// RecordShares appends share buckets for a miner in one transaction.
func (s *service) RecordShares(ctx context.Context, minerID string, readings []ShareReading) error {
	if err := s.checkBatch(len(readings)); err != nil {
		return s.fail("shares", minerID, err)
	}
	if err := validation.Struct(shareBatch{Readings: readings}); err != nil {
		return s.fail("shares", minerID, err)
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetMiner(ctx, minerID); err != nil {
			return err
		}

		for _, r := range readings {
			gpu, err := tx.GetOrCreateGPU(ctx, minerID, r.GPUNo)
			if err != nil {
				return err
			}

			if err := tx.AppendShare(ctx, gpu, model.ShareSample{
				Start:    r.Start.UTC(),
				Valid:    r.Valid,
				Invalid:  r.Invalid,
				Duration: r.Duration,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.fail("shares", minerID, err)
	}

	metrics.IngestBatches.WithLabelValues("shares", "committed").Inc()
	metrics.IngestReadings.WithLabelValues("shares").Add(float64(len(readings)))

	return nil
}

func (s *service) checkBatch(n int) error {
	if n > s.cfg.MaxBatchSize {
		return errors.New().WithData(ErrBatchTooLarge, struct {
			Size int
			Max  int
		}{
			Size: n,
			Max:  s.cfg.MaxBatchSize,
		})
	}
	return nil
}

func (s *service) fail(kind, minerID string, err error) error {
	metrics.IngestBatches.WithLabelValues(kind, string(errors.CodeOf(err))).Inc()

	s.log.Debug().
		Err(err).
		Str("kind", kind).
		Str("miner_id", minerID).
		Msg("Telemetry batch rejected")

	return err
}
