package rpc

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"flywheel/core/events"
	"flywheel/crypto"
	"flywheel/native/buildercodes"
	"flywheel/native/flywheel"
	"flywheel/observability"
	"flywheel/state"
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

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type handlerFunc func(*RPCRequest) (interface{}, *RPCError)

// Server exposes the campaign engine and the builder codes registry over
// JSON-RPC 2.0. Mutating methods require the configured bearer token;
// read-only methods stay open.
type Server struct {
	engine    *flywheel.Engine
	st        *state.Manager
	registry  *buildercodes.Registry
	registrar *buildercodes.RandomRegistrar
	events    *events.Broadcaster
	authToken string
	limiter   *rateLimiter
	logger    *slog.Logger
	methods   map[string]handlerFunc
	mutating  map[string]bool
}

// ServerConfig wires a Server.
type ServerConfig struct {
	Engine             *flywheel.Engine
	State              *state.Manager
	Registry           *buildercodes.Registry
	Registrar          *buildercodes.RandomRegistrar
	Events             *events.Broadcaster
	AuthToken          string
	RateLimitPerMinute float64
	Logger             *slog.Logger
}

// NewServer constructs the JSON-RPC server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    cfg.Engine,
		st:        cfg.State,
		registry:  cfg.Registry,
		registrar: cfg.Registrar,
		events:    cfg.Events,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limiter:   newRateLimiter(cfg.RateLimitPerMinute),
		logger:    logger,
	}
	s.registerMethods()
	return s
}

func (s *Server) registerMethods() {
	s.methods = map[string]handlerFunc{
		"flywheel_createCampaign":            s.handleCreateCampaign,
		"flywheel_campaignAddress":           s.handleCampaignAddress,
		"flywheel_getCampaign":               s.handleGetCampaign,
		"flywheel_listCampaigns":             s.handleListCampaigns,
		"flywheel_updateStatus":              s.handleUpdateStatus,
		"flywheel_deposit":                   s.handleDeposit,
		"flywheel_reward":                    s.handleReward,
		"flywheel_allocate":                  s.handleAllocate,
		"flywheel_deallocate":                s.handleDeallocate,
		"flywheel_distribute":                s.handleDistribute,
		"flywheel_distributeFees":            s.handleDistributeFees,
		"flywheel_collectFees":               s.handleCollectFees,
		"flywheel_withdraw":                  s.handleWithdraw,
		"flywheel_updateMetadata":            s.handleUpdateMetadata,
		"flywheel_ledger":                    s.handleLedger,
		"buildercodes_register":              s.handleRegister,
		"buildercodes_registerWithSignature": s.handleRegisterWithSignature,
		"buildercodes_updatePayoutAddress":   s.handleUpdatePayoutAddress,
		"buildercodes_resolve":               s.handleResolve,
		"buildercodes_toTokenId":             s.handleToTokenID,
		"buildercodes_toCode":                s.handleToCode,
		"buildercodes_tokenURI":              s.handleTokenURI,
		"buildercodes_registerRandom":        s.handleRegisterRandom,
	}
	s.mutating = map[string]bool{
		"flywheel_createCampaign":            true,
		"flywheel_updateStatus":              true,
		"flywheel_deposit":                   true,
		"flywheel_reward":                    true,
		"flywheel_allocate":                  true,
		"flywheel_deallocate":                true,
		"flywheel_distribute":                true,
		"flywheel_distributeFees":            true,
		"flywheel_collectFees":               true,
		"flywheel_withdraw":                  true,
		"flywheel_updateMetadata":            true,
		"buildercodes_register":              true,
		"buildercodes_registerWithSignature": true,
		"buildercodes_updatePayoutAddress":   true,
		"buildercodes_registerRandom":        true,
	}
}

// Router builds the HTTP routing surface: the JSON-RPC endpoint, the event
// stream and a liveness probe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/rpc", s.handleRPC)
	r.Get("/ws/events", s.handleEventsWS)
	return r
}

func clientID(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func (s *Server) authorized(req *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(req.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if !s.limiter.allow(clientID(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, Error: &RPCError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &RPCError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %s not found", req.Method)}})
		return
	}
	if s.mutating[req.Method] && !s.authorized(r) {
		writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &RPCError{Code: codeUnauthorized, Message: "unauthorized"}})
		return
	}
	started := time.Now()
	result, rpcErr := handler(&req)

	module := "flywheel"
	if strings.HasPrefix(req.Method, "buildercodes_") {
		module = "buildercodes"
	}
	var obsErr error
	if rpcErr != nil {
		obsErr = errors.New(rpcErr.Message)
	}
	observability.ModuleMetrics().Observe(module, req.Method, time.Since(started), obsErr)

	if rpcErr != nil {
		s.logger.Warn("rpc request failed",
			slog.String("requestId", requestID),
			slog.String("method", req.Method),
			slog.String("error", rpcErr.Message),
		)
		writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr})
		return
	}
	s.logger.Info("rpc request served",
		slog.String("requestId", requestID),
		slog.String("method", req.Method),
		slog.Duration("duration", time.Since(started)),
	)
	writeResponse(w, &RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

func writeResponse(w http.ResponseWriter, resp *RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single params object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func parseAddress(value, field string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s address: %v", field, err)}
	}
	return addr.Bytes(), nil
}

func parseAmount(value, field string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("%s must not be empty", field)}
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s amount", field)}
	}
	return amount, nil
}

func parseHex(value, field string) ([]byte, *RPCError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid %s hex: %v", field, err)}
	}
	return decoded, nil
}

func encodeAddress(addr [20]byte) string {
	return crypto.NewAddress(addr).String()
}

// errorCode maps module errors onto JSON-RPC error codes so off-chain callers
// can branch without parsing messages.
func errorCode(err error) int {
	switch {
	case errors.Is(err, flywheel.ErrUnauthorized), errors.Is(err, buildercodes.ErrUnauthorized):
		return codeUnauthorized
	case errors.Is(err, flywheel.ErrInvalidPayload),
		errors.Is(err, flywheel.ErrZeroAddress),
		errors.Is(err, flywheel.ErrZeroPayoutAmount),
		errors.Is(err, buildercodes.ErrInvalidCode),
		errors.Is(err, buildercodes.ErrZeroAddress):
		return codeInvalidParams
	default:
		return codeServerError
	}
}

func moduleError(err error) *RPCError {
	return &RPCError{Code: errorCode(err), Message: err.Error()}
}
