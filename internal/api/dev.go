package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/tokenstream/internal/ledger"
	"github.com/gyaneshwarpardhi/tokenstream/internal/oracle"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/vault"
)

// Dev exposes the in-memory collaborators for local setups and demos.
type Dev struct {
	Ledger *ledger.Memory
	Vaults map[stream.Address]*vault.Memory
	Feeds  map[string]*oracle.Static
}

func (d *Dev) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/dev/mint", d.mint)
	mux.HandleFunc("GET /v1/dev/balances/{token}/{address}", d.balance)
	mux.HandleFunc("POST /v1/dev/vaults/{id}/accrue", d.accrue)
	mux.HandleFunc("POST /v1/dev/vaults/{id}/pause", d.pauseVault)
	mux.HandleFunc("POST /v1/dev/oracles/{id}/price", d.setPrice)
}

// POST /v1/dev/mint
func (d *Dev) mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string         `json:"token"`
		To     stream.Address `json:"to"`
		Amount int64          `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Token == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "token and to are required")
		return
	}
	if err := d.Ledger.Mint(r.Context(), req.Token, req.To, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   req.Token,
		"address": req.To,
		"balance": d.Ledger.Balance(r.Context(), req.Token, req.To),
	})
}

// GET /v1/dev/balances/{token}/{address}
func (d *Dev) balance(w http.ResponseWriter, r *http.Request) {
	token, addr := r.PathValue("token"), stream.Address(r.PathValue("address"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"address": addr,
		"balance": d.Ledger.Balance(r.Context(), token, addr),
	})
}

func (d *Dev) vault(w http.ResponseWriter, r *http.Request) (*vault.Memory, bool) {
	v, ok := d.Vaults[stream.Address(r.PathValue("id"))]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("vault %q not found", r.PathValue("id")))
	}
	return v, ok
}

// POST /v1/dev/vaults/{id}/accrue: credit one period of yield.
func (d *Dev) accrue(w http.ResponseWriter, r *http.Request) {
	v, ok := d.vault(w, r)
	if !ok {
		return
	}
	yield, err := v.Accrue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	shares, assets := v.Totals()
	writeJSON(w, http.StatusOK, map[string]int64{"yield": yield, "shares": shares, "assets": assets})
}

// POST /v1/dev/vaults/{id}/pause
func (d *Dev) pauseVault(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused bool `json:"paused"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, ok := d.vault(w, r)
	if !ok {
		return
	}
	v.SetPaused(req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// POST /v1/dev/oracles/{id}/price: as_of defaults to now.
func (d *Dev) setPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Price string `json:"price"`
		AsOf  int64  `json:"as_of"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, ok := d.Feeds[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("oracle %q not found", r.PathValue("id")))
		return
	}
	if req.AsOf == 0 {
		req.AsOf = time.Now().Unix()
	}
	if err := f.Set(req.Price, req.AsOf); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"price": f.String(), "as_of": req.AsOf})
}
