package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketvault/core"
	"marketvault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the market node over JSON-RPC 2.0. Mutating methods require
// a bearer token; read methods are open.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
	metrics   *metrics.RPCMetrics
}

// ServerOption customises server construction.
type ServerOption func(*Server)

// WithLogger overrides the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuthToken overrides the bearer token read from MARKETVAULT_RPC_TOKEN.
func WithAuthToken(token string) ServerOption {
	return func(s *Server) {
		s.authToken = strings.TrimSpace(token)
	}
}

func NewServer(node *core.Node, opts ...ServerOption) *Server {
	s := &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv("MARKETVAULT_RPC_TOKEN")),
		logger:    slog.Default(),
		metrics:   metrics.RPC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full HTTP surface: JSON-RPC at /, Prometheus metrics at
// /metrics and a liveness probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to method handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	requestID := uuid.NewString()
	started := time.Now()
	s.logger.Debug("rpc request", slog.String("method", req.Method), slog.String("requestId", requestID))
	defer func() {
		s.metrics.ObserveRequest(req.Method, time.Since(started))
	}()

	if mutatesState(req.Method) {
		if authErr := s.requireAuth(r); authErr != nil {
			s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", authErr.Code))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "market_getOwner":
		s.handleGetOwner(w, req)
	case "market_setAdmin":
		s.handleSetAdmin(w, req)
	case "market_getAdmin":
		s.handleGetAdmin(w, req)
	case "market_registerDeposit":
		s.handleRegisterDeposit(w, req)
	case "market_registerNftDeposit":
		s.handleRegisterNFTDeposit(w, req)
	case "market_getBalance":
		s.handleGetBalance(w, req)
	case "market_getNftDeposit":
		s.handleGetNFTDeposit(w, req)
	case "market_ask":
		s.handleAsk(w, req)
	case "market_cancel":
		s.handleCancel(w, req)
	case "market_buy":
		s.handleBuy(w, req)
	case "market_withdraw":
		s.handleWithdraw(w, req)
	case "market_getTotal":
		s.handleGetTotal(w, req)
	case "market_resetTotal":
		s.handleResetTotal(w, req)
	case "market_getLastAskId":
		s.handleGetLastAskID(w, req)
	case "market_getAskById":
		s.handleGetAskByID(w, req)
	case "market_getAskIdByToken":
		s.handleGetAskIDByToken(w, req)
	case "market_getLastWithdrawId":
		s.handleGetLastWithdrawID(w, req)
	case "market_getWithdrawById":
		s.handleGetWithdrawByID(w, req)
	case "market_getLastNftWithdrawId":
		s.handleGetLastNFTWithdrawID(w, req)
	case "market_getNftWithdrawById":
		s.handleGetNFTWithdrawByID(w, req)
	default:
		s.metrics.ObserveError(req.Method, fmt.Sprintf("%d", codeMethodNotFound))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

// mutatesState reports whether a method changes market state and therefore
// requires bearer authentication.
func mutatesState(method string) bool {
	switch method {
	case "market_setAdmin", "market_registerDeposit", "market_registerNftDeposit",
		"market_ask", "market_cancel", "market_buy", "market_withdraw", "market_resetTotal":
		return true
	}
	return false
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
