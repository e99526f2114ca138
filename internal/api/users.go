package api

import (
	"net/http"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/model"
	"codeberg.org/mutker/hashtop/internal/store"
	"codeberg.org/mutker/hashtop/internal/validation"
	"github.com/go-chi/chi/v5"
)

type userResponse struct {
	User       model.User      `json:"user"`
	LatestStat *model.UserStat `json:"latest_stat"`
}

type createMinerRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

func walletParam(r *http.Request) (string, error) {
	wallet := chi.URLParam(r, "wallet")
	if err := validation.Var("wallet_addr", wallet, "required,eth_addr"); err != nil {
		return "", err
	}
	return wallet, nil
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var user model.User
	if err := decodeJSON(w, r, &user); err != nil {
		h.writeError(w, r, err)
		return
	}
	// Creation time is always assigned by the server.
	user.CreatedAt = time.Time{}
	if err := validation.Struct(user); err != nil {
		h.writeError(w, r, err)
		return
	}

	err := h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if err := tx.CreateUser(r.Context(), user); err != nil {
			return err
		}
		created, err := tx.GetUser(r.Context(), user.WalletAddr)
		user = created
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info().Str("wallet", user.WalletAddr).Msg("User created")
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var resp userResponse
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		user, err := tx.GetUser(r.Context(), wallet)
		if err != nil {
			return err
		}
		resp.User = user

		stat, err := tx.LatestUserStat(r.Context(), wallet)
		switch {
		case err == nil:
			resp.LatestStat = &stat
		case !errors.HasCode(err, errors.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var update model.UserUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.writeError(w, r, err)
		return
	}
	if update.Empty() {
		h.writeError(w, r, errors.New().WithMessage(ErrBadRequest, "update must set fname or lname"))
		return
	}
	if err := validation.Struct(update); err != nil {
		h.writeError(w, r, err)
		return
	}

	var user model.User
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if err := tx.UpdateUser(r.Context(), wallet, update); err != nil {
			return err
		}
		user, err = tx.GetUser(r.Context(), wallet)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		return tx.DeleteUser(r.Context(), wallet)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info().Str("wallet", wallet).Msg("User deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserStats(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var stats []model.UserStat
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if _, err := tx.GetUser(r.Context(), wallet); err != nil {
			return err
		}
		stats, err = tx.ListUserStats(r.Context(), wallet, window)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if stats == nil {
		stats = []model.UserStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) createMiner(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createMinerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var miner model.Miner
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		miner, err = tx.CreateMiner(r.Context(), wallet, req.Name)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.log.Info().Str("wallet", wallet).Str("miner_id", miner.ID).Msg("Miner registered")
	writeJSON(w, http.StatusCreated, miner)
}

func (h *Handler) listMiners(w http.ResponseWriter, r *http.Request) {
	wallet, err := walletParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var miners []model.Miner
	err = h.store.WithTx(r.Context(), func(tx store.Tx) error {
		if _, err := tx.GetUser(r.Context(), wallet); err != nil {
			return err
		}
		miners, err = tx.ListMiners(r.Context(), wallet)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if miners == nil {
		miners = []model.Miner{}
	}
	writeJSON(w, http.StatusOK, miners)
}
