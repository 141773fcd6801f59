package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"flywheel/core/events"
	"flywheel/native/buildercodes"
	"flywheel/native/flywheel"
	"flywheel/native/flywheel/hooks"
	"flywheel/state"
	"flywheel/storage"
)

type testEnv struct {
	server  *Server
	http    *httptest.Server
	manager *state.Manager
	events  *events.Broadcaster
}

func newTestEnv(t *testing.T, authToken string, ratePerMinute float64) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	broadcaster := events.NewBroadcaster(nil)

	registry := buildercodes.NewRegistry(manager, 1337)
	registrarSelf := testAddr(0xFE)
	require.NoError(t, manager.GrantRole(buildercodes.RoleRegistrar, registrarSelf[:]))
	registrar := buildercodes.NewRandomRegistrar(registry, manager, registrarSelf)

	engine := flywheel.NewEngine()
	engine.SetState(manager)
	engine.SetBank(manager)
	engine.SetEmitter(broadcaster)
	engine.RegisterHook(hooks.SimpleRewardsAddress, hooks.NewSimpleRewards(manager))
	engine.RegisterHook(hooks.AdvertisementConversionAddress, hooks.NewAdvertisementConversion(manager))

	server := NewServer(ServerConfig{
		Engine:             engine,
		State:              manager,
		Registry:           registry,
		Registrar:          registrar,
		Events:             broadcaster,
		AuthToken:          authToken,
		RateLimitPerMinute: ratePerMinute,
	})
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: server, http: ts, manager: manager, events: broadcaster}
}

func testAddr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func (env *testEnv) call(t *testing.T, token, method string, params interface{}) *RPCResponse {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{raw},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decoded := new(RPCResponse)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(decoded))
	return decoded
}

func resultMap(t *testing.T, resp *RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	m, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %T", resp.Result)
	return m
}

func simpleCampaignPayload(t *testing.T, owner, manager, feeRecipient [20]byte, feeBps uint32) string {
	t.Helper()
	raw, err := rlp.EncodeToBytes(hooks.SimpleConfig{
		Owner:        owner,
		Manager:      manager,
		FeeRecipient: feeRecipient,
		FeeBps:       feeBps,
		MetadataURI:  "ipfs://test",
	})
	require.NoError(t, err)
	return hex.EncodeToString(raw)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t, "", 0)
	resp := env.call(t, "", "flywheel_unknown", map[string]string{})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t, "secret-token", 0)
	owner := encodeAddress(testAddr(1))
	params := map[string]interface{}{
		"caller":  owner,
		"hook":    encodeAddress(hooks.SimpleRewardsAddress),
		"nonce":   1,
		"payload": simpleCampaignPayload(t, testAddr(1), testAddr(2), testAddr(3), 0),
	}

	resp := env.call(t, "", "flywheel_createCampaign", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = env.call(t, "wrong-token", "flywheel_createCampaign", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = env.call(t, "secret-token", "flywheel_createCampaign", params)
	require.Nil(t, resp.Error)

	// Read-only methods stay open.
	resp = env.call(t, "", "buildercodes_toTokenId", map[string]string{"code": "builder"})
	require.Nil(t, resp.Error)
}

func TestCreateAndInspectCampaign(t *testing.T) {
	env := newTestEnv(t, "", 0)
	payload := simpleCampaignPayload(t, testAddr(1), testAddr(2), testAddr(3), 500)
	params := map[string]interface{}{
		"caller":  encodeAddress(testAddr(1)),
		"hook":    encodeAddress(hooks.SimpleRewardsAddress),
		"nonce":   7,
		"payload": payload,
	}

	// The predicted address matches the created one.
	predicted := resultMap(t, env.call(t, "", "flywheel_campaignAddress", map[string]interface{}{
		"hook":    encodeAddress(hooks.SimpleRewardsAddress),
		"nonce":   7,
		"payload": payload,
	}))["campaign"]

	created := resultMap(t, env.call(t, "", "flywheel_createCampaign", params))["campaign"]
	require.Equal(t, predicted, created)

	info := resultMap(t, env.call(t, "", "flywheel_getCampaign", map[string]string{
		"campaign": created.(string),
	}))
	require.Equal(t, "inactive", info["status"])
	require.Equal(t, "ipfs://test", info["metadataUri"])

	ledger := resultMap(t, env.call(t, "", "flywheel_ledger", map[string]string{
		"campaign": created.(string),
		"token":    encodeAddress(testAddr(0xF0)),
	}))
	require.Equal(t, "0", ledger["balance"])
}

func TestDepositFlowOverRPC(t *testing.T) {
	env := newTestEnv(t, "", 0)
	sponsor, token := testAddr(1), testAddr(0xF0)
	payload := simpleCampaignPayload(t, sponsor, testAddr(2), testAddr(3), 0)

	created := resultMap(t, env.call(t, "", "flywheel_createCampaign", map[string]interface{}{
		"caller":  encodeAddress(sponsor),
		"hook":    encodeAddress(hooks.SimpleRewardsAddress),
		"nonce":   1,
		"payload": payload,
	}))["campaign"].(string)

	require.NoError(t, env.manager.SetTokenBalance(token, sponsor, big.NewInt(1000)))

	resp := env.call(t, "", "flywheel_deposit", map[string]interface{}{
		"caller":   encodeAddress(sponsor),
		"campaign": created,
		"token":    encodeAddress(token),
		"amount":   "400",
	})
	require.Nil(t, resp.Error)

	ledger := resultMap(t, env.call(t, "", "flywheel_ledger", map[string]string{
		"campaign": created,
		"token":    encodeAddress(token),
	}))
	require.Equal(t, "400", ledger["balance"])
	require.Equal(t, "400", ledger["freeBalance"])
}

func TestBuilderCodesCodecOverRPC(t *testing.T) {
	env := newTestEnv(t, "", 0)

	id := resultMap(t, env.call(t, "", "buildercodes_toTokenId", map[string]string{
		"code": "ab",
	}))["tokenId"]
	require.Equal(t, "79", id)

	code := resultMap(t, env.call(t, "", "buildercodes_toCode", map[string]string{
		"tokenId": "79",
	}))["code"]
	require.Equal(t, "ab", code)

	resp := env.call(t, "", "buildercodes_toTokenId", map[string]string{"code": "NOT VALID"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRegisterRandomOverRPC(t *testing.T) {
	env := newTestEnv(t, "", 0)
	caller, payout := testAddr(1), testAddr(2)

	code := resultMap(t, env.call(t, "", "buildercodes_registerRandom", map[string]string{
		"caller": encodeAddress(caller),
		"payout": encodeAddress(payout),
	}))["code"].(string)
	require.True(t, buildercodes.ValidCode(code))

	record := resultMap(t, env.call(t, "", "buildercodes_resolve", map[string]string{
		"code": code,
	}))
	require.Equal(t, encodeAddress(caller), record["owner"])
	require.Equal(t, encodeAddress(payout), record["payout"])
}

func TestInvalidAddressParameterRejected(t *testing.T) {
	env := newTestEnv(t, "", 0)
	resp := env.call(t, "", "flywheel_getCampaign", map[string]string{
		"campaign": "not-a-bech32-address",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestAllocateBatchAtomicityOverRPC(t *testing.T) {
	env := newTestEnv(t, "", 0)
	sponsor, manager, token := testAddr(1), testAddr(2), testAddr(0xF0)
	payload := simpleCampaignPayload(t, sponsor, manager, testAddr(3), 0)

	created := resultMap(t, env.call(t, "", "flywheel_createCampaign", map[string]interface{}{
		"caller":  encodeAddress(sponsor),
		"hook":    encodeAddress(hooks.SimpleRewardsAddress),
		"nonce":   1,
		"payload": payload,
	}))["campaign"].(string)

	require.NoError(t, env.manager.SetTokenBalance(token, sponsor, big.NewInt(100)))
	resp := env.call(t, "", "flywheel_deposit", map[string]interface{}{
		"caller":   encodeAddress(sponsor),
		"campaign": created,
		"token":    encodeAddress(token),
		"amount":   "100",
	})
	require.Nil(t, resp.Error)
	resp = env.call(t, "", "flywheel_updateStatus", map[string]interface{}{
		"caller":   encodeAddress(manager),
		"campaign": created,
		"status":   "active",
	})
	require.Nil(t, resp.Error)

	// The second entry overdraws the campaign, so the first must not stick.
	raw, err := rlp.EncodeToBytes(hooks.RewardBatch{Entries: []hooks.RewardEntry{
		{Recipient: testAddr(9), Amount: big.NewInt(60)},
		{Recipient: testAddr(8), Amount: big.NewInt(60)},
	}})
	require.NoError(t, err)
	resp = env.call(t, "", "flywheel_allocate", map[string]interface{}{
		"caller":   encodeAddress(manager),
		"campaign": created,
		"token":    encodeAddress(token),
		"payload":  hex.EncodeToString(raw),
	})
	require.NotNil(t, resp.Error)

	ledger := resultMap(t, env.call(t, "", "flywheel_ledger", map[string]string{
		"campaign": created,
		"token":    encodeAddress(token),
	}))
	require.Equal(t, "0", ledger["allocatedTotal"])
	require.Equal(t, "100", ledger["freeBalance"])
}

func TestConversionRetryAfterFailedBatch(t *testing.T) {
	env := newTestEnv(t, "", 0)
	owner, provider, token := testAddr(1), testAddr(2), testAddr(0xF0)

	cfg, err := rlp.EncodeToBytes(hooks.ConversionConfig{
		Owner:       owner,
		Provider:    provider,
		MetadataURI: "ipfs://conversion",
	})
	require.NoError(t, err)
	created := resultMap(t, env.call(t, "", "flywheel_createCampaign", map[string]interface{}{
		"caller":  encodeAddress(owner),
		"hook":    encodeAddress(hooks.AdvertisementConversionAddress),
		"nonce":   1,
		"payload": hex.EncodeToString(cfg),
	}))["campaign"].(string)
	resp := env.call(t, "", "flywheel_updateStatus", map[string]interface{}{
		"caller":   encodeAddress(provider),
		"campaign": created,
		"status":   "active",
	})
	require.Nil(t, resp.Error)

	var eventID [32]byte
	eventID[31] = 1
	batch, err := rlp.EncodeToBytes(hooks.ConversionBatch{Conversions: []hooks.Conversion{
		{EventID: eventID, Recipient: testAddr(9), Amount: big.NewInt(100), LogRef: []byte{0x01}},
	}})
	require.NoError(t, err)
	rewardParams := map[string]interface{}{
		"caller":   encodeAddress(provider),
		"campaign": created,
		"token":    encodeAddress(token),
		"payload":  hex.EncodeToString(batch),
	}

	// The campaign is unfunded, so the batch fails after the hook has seen
	// the event ID. That marker must not survive the failed attempt.
	resp = env.call(t, "", "flywheel_reward", rewardParams)
	require.NotNil(t, resp.Error)

	require.NoError(t, env.manager.SetTokenBalance(token, owner, big.NewInt(1000)))
	resp = env.call(t, "", "flywheel_deposit", map[string]interface{}{
		"caller":   encodeAddress(owner),
		"campaign": created,
		"token":    encodeAddress(token),
		"amount":   "1000",
	})
	require.Nil(t, resp.Error)

	resp = env.call(t, "", "flywheel_reward", rewardParams)
	require.Nil(t, resp.Error, "retry after funding rejected: %+v", resp.Error)

	// A genuine replay is still caught.
	resp = env.call(t, "", "flywheel_reward", rewardParams)
	require.NotNil(t, resp.Error)
}

func TestEventStreamOverWebsocket(t *testing.T) {
	env := newTestEnv(t, "", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Keep emitting until the reader observes a frame; the subscription may
	// start slightly after the first emit.
	done := make(chan struct{})
	defer close(done)
	go func() {
		for i := 0; i < 50; i++ {
			env.events.Emit(events.MetadataUpdated{MetadataURI: "ipfs://stream"})
			select {
			case <-done:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()

	_, frame, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg struct {
		Type  string          `json:"type"`
		Event json.RawMessage `json:"event"`
	}
	require.NoError(t, json.Unmarshal(frame, &msg))
	require.Equal(t, events.TypeMetadataUpdated, msg.Type)
}

func TestRateLimiting(t *testing.T) {
	env := newTestEnv(t, "", 6) // burst of one request

	params, err := json.Marshal(map[string]string{"code": "builder"})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  "buildercodes_toTokenId",
		"params":  []json.RawMessage{params},
	})
	require.NoError(t, err)

	var statuses []int
	for i := 0; i < 3; i++ {
		resp, err := http.Post(env.http.URL+"/rpc", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	require.Contains(t, statuses, http.StatusTooManyRequests, fmt.Sprintf("statuses: %v", statuses))
}
