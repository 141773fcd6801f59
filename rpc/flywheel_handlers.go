package rpc

import (
	"strings"

	"flywheel/native/flywheel"
)

type createCampaignParams struct {
	Caller  string `json:"caller"`
	Hook    string `json:"hook"`
	Nonce   uint64 `json:"nonce"`
	Payload string `json:"payload"`
}

type campaignAddressParams struct {
	Hook    string `json:"hook"`
	Nonce   uint64 `json:"nonce"`
	Payload string `json:"payload"`
}

type campaignParams struct {
	Campaign string `json:"campaign"`
}

type updateStatusParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Status   string `json:"status"`
	Payload  string `json:"payload"`
}

type depositParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
}

type campaignOpParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Token    string `json:"token"`
	Payload  string `json:"payload"`
}

type collectFeesParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Token    string `json:"token"`
}

type withdrawParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Payload  string `json:"payload"`
}

type updateMetadataParams struct {
	Caller   string `json:"caller"`
	Campaign string `json:"campaign"`
	Payload  string `json:"payload"`
}

type ledgerParams struct {
	Campaign string `json:"campaign"`
	Token    string `json:"token"`
}

type campaignResult struct {
	Address     string `json:"address"`
	Hook        string `json:"hook"`
	Status      string `json:"status"`
	MetadataURI string `json:"metadataUri"`
	CreatedAt   int64  `json:"createdAt"`
}

type ledgerResult struct {
	Balance          string `json:"balance"`
	FreeBalance      string `json:"freeBalance"`
	AllocatedTotal   string `json:"allocatedTotal"`
	FeeTotal         string `json:"feeTotal"`
	DistributedTotal string `json:"distributedTotal"`
}

func parseStatus(value string) (flywheel.CampaignStatus, *RPCError) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "inactive":
		return flywheel.StatusInactive, nil
	case "active":
		return flywheel.StatusActive, nil
	case "finalizing":
		return flywheel.StatusFinalizing, nil
	case "finalized":
		return flywheel.StatusFinalized, nil
	default:
		return 0, &RPCError{Code: codeInvalidParams, Message: "invalid campaign status"}
	}
}

func campaignView(c *flywheel.Campaign) campaignResult {
	return campaignResult{
		Address:     encodeAddress(c.Address),
		Hook:        encodeAddress(c.Hook),
		Status:      c.Status.String(),
		MetadataURI: c.MetadataURI,
		CreatedAt:   c.CreatedAt,
	}
}

func (s *Server) handleCreateCampaign(req *RPCRequest) (interface{}, *RPCError) {
	var params createCampaignParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	hook, rpcErr := parseAddress(params.Hook, "hook")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := s.engine.CreateCampaign(caller, hook, params.Nonce, payload)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"campaign": encodeAddress(addr)}, nil
}

func (s *Server) handleCampaignAddress(req *RPCRequest) (interface{}, *RPCError) {
	var params campaignAddressParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hook, rpcErr := parseAddress(params.Hook, "hook")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr := s.engine.CampaignAddress(hook, params.Nonce, payload)
	return map[string]string{"campaign": encodeAddress(addr)}, nil
}

func (s *Server) handleGetCampaign(req *RPCRequest) (interface{}, *RPCError) {
	var params campaignParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, err := s.engine.GetCampaign(addr)
	if err != nil {
		return nil, moduleError(err)
	}
	return campaignView(campaign), nil
}

func (s *Server) handleListCampaigns(req *RPCRequest) (interface{}, *RPCError) {
	addrs, err := s.st.CampaignList()
	if err != nil {
		return nil, moduleError(err)
	}
	campaigns := make([]campaignResult, 0, len(addrs))
	for _, addr := range addrs {
		campaign, ok, err := s.st.CampaignGet(addr)
		if err != nil {
			return nil, moduleError(err)
		}
		if !ok {
			continue
		}
		campaigns = append(campaigns, campaignView(campaign))
	}
	return campaigns, nil
}

func (s *Server) handleUpdateStatus(req *RPCRequest) (interface{}, *RPCError) {
	var params updateStatusParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	status, rpcErr := parseStatus(params.Status)
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.UpdateStatus(caller, campaign, status, payload); err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"status": status.String()}, nil
}

func (s *Server) handleDeposit(req *RPCRequest) (interface{}, *RPCError) {
	var params depositParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress(params.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount, "deposit")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Deposit(caller, campaign, token, amount); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) campaignOp(req *RPCRequest, op func(caller, campaign, token [20]byte, payload []byte) error) (interface{}, *RPCError) {
	var params campaignOpParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress(params.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := op(caller, campaign, token, payload); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleReward(req *RPCRequest) (interface{}, *RPCError) {
	return s.campaignOp(req, s.engine.Reward)
}

func (s *Server) handleAllocate(req *RPCRequest) (interface{}, *RPCError) {
	return s.campaignOp(req, s.engine.Allocate)
}

func (s *Server) handleDeallocate(req *RPCRequest) (interface{}, *RPCError) {
	return s.campaignOp(req, s.engine.Deallocate)
}

func (s *Server) handleDistribute(req *RPCRequest) (interface{}, *RPCError) {
	return s.campaignOp(req, s.engine.Distribute)
}

func (s *Server) handleDistributeFees(req *RPCRequest) (interface{}, *RPCError) {
	return s.campaignOp(req, s.engine.DistributeFees)
}

func (s *Server) handleCollectFees(req *RPCRequest) (interface{}, *RPCError) {
	var params collectFeesParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress(params.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.engine.CollectFees(caller, campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	return map[string]string{"amount": amount.String()}, nil
}

func (s *Server) handleWithdraw(req *RPCRequest) (interface{}, *RPCError) {
	var params withdrawParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress(params.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount, "withdraw")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.WithdrawFunds(caller, campaign, token, amount, payload); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleUpdateMetadata(req *RPCRequest) (interface{}, *RPCError) {
	var params updateMetadataParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddress(params.Caller, "caller")
	if rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	payload, rpcErr := parseHex(params.Payload, "payload")
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.UpdateMetadata(caller, campaign, payload); err != nil {
		return nil, moduleError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleLedger(req *RPCRequest) (interface{}, *RPCError) {
	var params ledgerParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	campaign, rpcErr := parseAddress(params.Campaign, "campaign")
	if rpcErr != nil {
		return nil, rpcErr
	}
	token, rpcErr := parseAddress(params.Token, "token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	ledger := s.engine.Ledger()
	balance, err := ledger.Balance(campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	free, err := ledger.FreeBalance(campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	allocated, err := s.st.LedgerAllocatedTotal(campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	feeTotal, err := s.st.LedgerFeeTotal(campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	distributed, err := ledger.DistributedTotal(campaign, token)
	if err != nil {
		return nil, moduleError(err)
	}
	return ledgerResult{
		Balance:          balance.String(),
		FreeBalance:      free.String(),
		AllocatedTotal:   allocated.String(),
		FeeTotal:         feeTotal.String(),
		DistributedTotal: distributed.String(),
	}, nil
}
