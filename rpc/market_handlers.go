package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"marketvault/core/types"
	"marketvault/native/market"
)

const (
	codeMarketInvalidParams     = -32021
	codeMarketNotFound          = -32022
	codeMarketForbidden         = -32023
	codeMarketInsufficientFunds = -32024
	codeMarketOverflow          = -32025
)

type setAdminParams struct {
	Caller string `json:"caller"`
	Admin  string `json:"admin"`
}

type registerDepositParams struct {
	Caller   string `json:"caller"`
	Currency uint64 `json:"currency"`
	Amount   string `json:"amount"`
	User     string `json:"user"`
}

type registerNFTDepositParams struct {
	Caller     string `json:"caller"`
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
	User       string `json:"user"`
}

type balanceParams struct {
	Currency uint64 `json:"currency"`
	Account  string `json:"account"`
}

type tokenParams struct {
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
}

type askParams struct {
	Caller     string `json:"caller"`
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
	Currency   uint64 `json:"currency"`
	Price      string `json:"price"`
}

type callerTokenParams struct {
	Caller     string `json:"caller"`
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
}

type withdrawParams struct {
	Caller   string `json:"caller"`
	Currency uint64 `json:"currency"`
	Amount   string `json:"amount"`
}

type currencyParams struct {
	Currency uint64 `json:"currency"`
}

type resetTotalParams struct {
	Caller   string `json:"caller"`
	Currency uint64 `json:"currency"`
}

type idParams struct {
	ID uint64 `json:"id"`
}

type askResult struct {
	ID         uint64 `json:"id"`
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
	Currency   uint64 `json:"currency"`
	Price      string `json:"price"`
	Seller     string `json:"seller"`
}

type withdrawalResult struct {
	ID      uint64 `json:"id"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Cause   string `json:"cause"`
}

type nftWithdrawalResult struct {
	ID         uint64 `json:"id"`
	Account    string `json:"account"`
	Collection uint64 `json:"collection"`
	Token      uint64 `json:"token"`
}

func formatAsk(ask *market.Ask) askResult {
	return askResult{
		ID:         ask.ID,
		Collection: ask.Collection,
		Token:      ask.Token,
		Currency:   ask.Currency,
		Price:      ask.Price.String(),
		Seller:     ask.Seller.String(),
	}
}

func formatWithdrawal(w *market.CurrencyWithdrawal) withdrawalResult {
	return withdrawalResult{
		ID:      w.ID,
		Account: w.Account.String(),
		Amount:  w.Amount.String(),
		Cause:   w.Cause.String(),
	}
}

func formatNFTWithdrawal(w *market.TokenWithdrawal) nftWithdrawalResult {
	return nftWithdrawalResult{
		ID:         w.ID,
		Account:    w.Account.String(),
		Collection: w.Collection,
		Token:      w.Token,
	}
}

// decodeParams enforces the one-parameter-object convention shared by every
// market method.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func (s *Server) writeInvalidParams(w http.ResponseWriter, req *RPCRequest, detail string) {
	s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", codeMarketInvalidParams))
	writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", detail)
}

func (s *Server) writeMarketError(w http.ResponseWriter, req *RPCRequest, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeServerError
	message := "internal_error"
	switch {
	case errors.Is(err, market.ErrNotFound):
		status = http.StatusNotFound
		code = codeMarketNotFound
		message = "not_found"
	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeMarketForbidden
		message = "forbidden"
	case errors.Is(err, market.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeMarketInsufficientFunds
		message = "insufficient_funds"
	case errors.Is(err, market.ErrOverflow):
		status = http.StatusConflict
		code = codeMarketOverflow
		message = "overflow"
	}
	s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", code))
	writeError(w, status, req.ID, code, message, err.Error())
}

func (s *Server) handleGetOwner(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Owner().String())
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, req *RPCRequest) {
	var params setAdminParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	admin, err := types.ParseAddress(params.Admin)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.SetAdmin(caller, admin); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleGetAdmin(w http.ResponseWriter, req *RPCRequest) {
	admin, err := s.node.Admin()
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, admin.String())
}

func (s *Server) handleRegisterDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params registerDepositParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	user, err := types.ParseAddress(params.User)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.RegisterDeposit(caller, params.Currency, amount, user); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleRegisterNFTDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params registerNFTDepositParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	user, err := types.ParseAddress(params.User)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.RegisterNFTDeposit(caller, params.Collection, params.Token, user); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	account, err := types.ParseAddress(params.Account)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	balance, err := s.node.Balance(params.Currency, account)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, balance.String())
}

func (s *Server) handleGetNFTDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	owner, err := s.node.NFTDeposit(params.Collection, params.Token)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, owner.String())
}

func (s *Server) handleAsk(w http.ResponseWriter, req *RPCRequest) {
	var params askParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	id, err := s.node.Ask(caller, params.Collection, params.Token, params.Currency, price)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleCancel(w http.ResponseWriter, req *RPCRequest) {
	var params callerTokenParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.Cancel(caller, params.Collection, params.Token); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleBuy(w http.ResponseWriter, req *RPCRequest) {
	var params callerTokenParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.Buy(caller, params.Collection, params.Token); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	id, err := s.node.Withdraw(caller, params.Currency, amount)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleGetTotal(w http.ResponseWriter, req *RPCRequest) {
	var params currencyParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	volume, err := s.node.TradedVolume(params.Currency)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, volume.String())
}

func (s *Server) handleResetTotal(w http.ResponseWriter, req *RPCRequest) {
	var params resetTotalParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	caller, err := types.ParseAddress(params.Caller)
	if err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	if err := s.node.ResetTradedVolume(caller, params.Currency); err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleGetLastAskID(w http.ResponseWriter, req *RPCRequest) {
	id, err := s.node.LastAskID()
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleGetAskByID(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	ask, err := s.node.AskByID(params.ID)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatAsk(ask))
}

func (s *Server) handleGetAskIDByToken(w http.ResponseWriter, req *RPCRequest) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	id, err := s.node.AskIDByToken(params.Collection, params.Token)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleGetLastWithdrawID(w http.ResponseWriter, req *RPCRequest) {
	id, err := s.node.LastWithdrawID()
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleGetWithdrawByID(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	withdrawal, err := s.node.WithdrawByID(params.ID)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatWithdrawal(withdrawal))
}

func (s *Server) handleGetLastNFTWithdrawID(w http.ResponseWriter, req *RPCRequest) {
	id, err := s.node.LastNFTWithdrawID()
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, idParams{ID: id})
}

func (s *Server) handleGetNFTWithdrawByID(w http.ResponseWriter, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		s.writeInvalidParams(w, req, err.Error())
		return
	}
	withdrawal, err := s.node.NFTWithdrawByID(params.ID)
	if err != nil {
		s.writeMarketError(w, req, err)
		return
	}
	writeResult(w, req.ID, formatNFTWithdrawal(withdrawal))
}
