package api

import (
	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/telemetry"
)

// Handler serves the REST surface over the entity store and the ingestion
// service.
type Handler struct {
	store  store.Store
	ingest telemetry.Ingester
	cfg    Config
	log    logger.Logger
}

func NewHandler(s store.Store, ingest telemetry.Ingester, cfg Config, log logger.Logger) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	return &Handler{
		store:  s,
		ingest: ingest,
		cfg:    cfg,
		log:    log,
	}, nil
}
