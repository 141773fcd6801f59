package rpc

import (
	"math/big"
	"strings"

	"flywheel/native/buildercodes"
)

type registerParams struct {
	Caller string `json:"caller"`
	Code   string `json:"code"`
	Owner  string `json:"owner"`
	Payout string `json:"payout"`
}

type registerWithSignatureParams struct {
	Code      string `json:"code"`
	Owner     string `json:"owner"`
	Payout    string `json:"payout"`
	Deadline  int64  `json:"deadline"`
	Registrar string `json:"registrar"`
	Signature string `json:"signature"`
}

type updatePayoutParams struct {
	Caller string `json:"caller"`
	Code   string `json:"code"`
	Payout string `json:"payout"`
}

type codeParams struct {
	Code string `json:"code"`
}

type tokenIDParams struct {
	TokenID string `json:"tokenId"`
}

type registerRandomParams struct {
	Caller string `json:"caller"`
	Payout string `json:"payout"`
}

type recordResult struct {
	Code         string `json:"code"`
	TokenID      string `json:"tokenId"`
	Owner        string `json:"owner"`
	Payout       string `json:"payout"`
	RegisteredAt int64  `json:"registeredAt"`
}

func recordView(rec *buildercodes.Record) (recordResult, *RPCError) {
	id, err := buildercodes.ToTokenID(rec.Code)
	if err != nil {
		return recordResult{}, moduleError(err)
	}
	return recordResult{
		Code:         rec.Code,
		TokenID:      id.String(),
		Owner:        encodeAddress(rec.Owner),
		Payout:       encodeAddress(rec.Payout),
		RegisteredAt: rec.RegisteredAt,
	}, nil
}

func (s *Server) handleRegister(req *RPCRequest) (interface{}, *RPCError) {
	var params registerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress(params.Owner, "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payout, rpcErr := parseAddress(params.Payout, "payout")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.registry.Register(caller, params.Code, owner, payout); err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"code": params.Code}, nil
}

func (s *Server) handleRegisterWithSignature(req *RPCRequest) (interface{}, *RPCError) {
	var params registerWithSignatureParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddress(params.Owner, "owner")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payout, rpcErr := parseAddress(params.Payout, "payout")
	if rpcErr != nil {
		return nil, rpcErr
	}
	registrar, rpcErr := parseAddress(params.Registrar, "registrar")
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, rpcErr := parseHex(params.Signature, "signature")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.registry.RegisterWithSignature(params.Code, owner, payout, params.Deadline, registrar, sig); err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"code": params.Code}, nil
}

func (s *Server) handleUpdatePayoutAddress(req *RPCRequest) (interface{}, *RPCError) {
	var params updatePayoutParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payout, rpcErr := parseAddress(params.Payout, "payout")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.registry.UpdatePayoutAddress(caller, params.Code, payout); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleResolve(req *RPCRequest) (interface{}, *RPCError) {
	var params codeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	rec, ok := s.registry.Resolve(params.Code)
	if !ok {
		return nil, moduleError(buildercodes.ErrUnregistered)
	}
	return recordView(rec)
}

func (s *Server) handleToTokenID(req *RPCRequest) (interface{}, *RPCError) {
	var params codeParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, err := buildercodes.ToTokenID(params.Code)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"tokenId": id.String()}, nil
}

func (s *Server) handleToCode(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(params.TokenID), 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid tokenId"}
	}
	code, err := buildercodes.ToCode(id)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"code": code}, nil
}

func (s *Server) handleTokenURI(req *RPCRequest) (interface{}, *RPCError) {
	var params tokenIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(params.TokenID), 10)
	if !ok {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid tokenId"}
	}
	uri, err := s.registry.TokenURI(id)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"uri": uri}, nil
}

func (s *Server) handleRegisterRandom(req *RPCRequest) (interface{}, *RPCError) {
	var params registerRandomParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if s.registrar == nil {
		return nil, &RPCError{Code: codeServerError, Message: "random registrar not configured"}
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payout, rpcErr := parseAddress(params.Payout, "payout")
	if rpcErr != nil {
		return nil, rpcErr
	}
	code, err := s.registrar.Register(caller, payout)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"code": code}, nil
}
