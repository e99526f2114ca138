package api

import (
	"net/http"

	"codeberg.org/mutker/hashtop/internal/aggregate"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/telemetry"
	"codeberg.org/mutker/hashtop/internal/validation"
	"github.com/go-chi/chi/v5"
)

type minerResponse struct {
	Miner model.Miner `json:"miner"`
	GPUs  []model.GPU `json:"gpus"`
}

func minerParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if err := validation.Var("id", id, "required,uuid"); err != nil {
		return "", err
	}
	return id, nil
}

func (h *Handler) getMiner(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var resp minerResponse
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if resp.Miner, err = tx.GetMiner(r.Context(), id); err != nil {
			return err
		}
		resp.GPUs, err = tx.ListGPUs(r.Context(), id)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if resp.GPUs == nil {
		resp.GPUs = []model.GPU{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteMiner(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		return tx.DeleteMiner(r.Context(), id)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info().Str("miner_id", id).Msg("Miner deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordHealth(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var readings []telemetry.Reading
	if err := decodeJSON(w, r, &readings); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ingest.RecordHealth(r.Context(), id, readings); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordShares(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var readings []telemetry.ShareReading
	if err := decodeJSON(w, r, &readings); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.ingest.RecordShares(r.Context(), id, readings); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) queryHealth(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var samples []model.HealthSample
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if _, err := tx.GetMiner(r.Context(), id); err != nil {
			return err
		}
		samples, err = tx.QueryHealth(r.Context(), id, window)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if samples == nil {
		samples = []model.HealthSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *Handler) queryShares(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var samples []model.ShareSample
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if _, err := tx.GetMiner(r.Context(), id); err != nil {
			return err
		}
		samples, err = tx.QueryShares(r.Context(), id, window)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if samples == nil {
		samples = []model.ShareSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// series reads both sample tables in one transaction so the aggregation sees
// a consistent snapshot, then computes outside of it.
func (h *Handler) series(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	in := aggregate.Input{
		Statistic: q.Get("stat"),
		Timezone:  q.Get("tz"),
		MAFactor:  h.cfg.MAFactor,
	}
	if in.Statistic == "" {
		in.Statistic = aggregate.StatShares
	}

	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if _, err := tx.GetMiner(r.Context(), id); err != nil {
			return err
		}
		if in.Health, err = tx.QueryHealth(r.Context(), id, window); err != nil {
			return err
		}
		in.Shares, err = tx.QueryShares(r.Context(), id, window)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := aggregate.Compute(in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"statistics": aggregate.Statistics()})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
