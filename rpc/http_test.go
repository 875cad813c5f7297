package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marketvault/core"
	"marketvault/core/types"
	"marketvault/storage"
)

const testToken = "test-secret"

var (
	testOwner = "0x0101010101010101010101010101010101010101"
	testAdmin = "0x0202020202020202020202020202020202020202"
	testAlice = "0xa1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"
	testBob   = "0xb1b1b1b1b1b1b1b1b1b1b1b1b1b1b1b1b1b1b1b1"
)

type rpcTestResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	owner, err := types.ParseAddress(testOwner)
	require.NoError(t, err)
	node, err := core.NewNode(storage.NewMemDB(), owner, []uint64{2})
	require.NoError(t, err)
	return NewServer(node, WithAuthToken(testToken))
}

func call(t *testing.T, s *Server, token, method string, params ...interface{}) rpcTestResponse {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  rawParams,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handle(recorder, req)

	var resp rpcTestResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func requireResult(t *testing.T, resp rpcTestResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, out))
}

func TestMutationsRequireBearerToken(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, "", "market_setAdmin", setAdminParams{Caller: testOwner, Admin: testAdmin})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = call(t, s, "wrong-token", "market_buy", callerTokenParams{Caller: testBob, Collection: 7, Token: 42})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Reads stay open.
	resp = call(t, s, "", "market_getOwner")
	var owner string
	requireResult(t, resp, &owner)
	require.Equal(t, testOwner, owner)
}

func TestMethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, "", "market_bogus")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidParamsRejected(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, testToken, "market_setAdmin", setAdminParams{Caller: "not-an-address", Admin: testAdmin})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketInvalidParams, resp.Error.Code)

	resp = call(t, s, testToken, "market_registerDeposit", registerDepositParams{
		Caller: testAdmin, Currency: 3, Amount: "12x4", User: testAlice,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketInvalidParams, resp.Error.Code)

	// Missing parameter object.
	resp = call(t, s, "", "market_getBalance")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketInvalidParams, resp.Error.Code)
}

func TestErrorCodesMapSentinels(t *testing.T) {
	s := newTestServer(t)
	resp := call(t, s, testToken, "market_setAdmin", setAdminParams{Caller: testOwner, Admin: testAdmin})
	var ok string
	requireResult(t, resp, &ok)
	require.Equal(t, "ok", ok)

	// Unknown ask id.
	resp = call(t, s, "", "market_getAskById", idParams{ID: 99})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketNotFound, resp.Error.Code)

	// Non-admin cannot attest deposits.
	resp = call(t, s, testToken, "market_registerDeposit", registerDepositParams{
		Caller: testAlice, Currency: 3, Amount: "100", User: testAlice,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketForbidden, resp.Error.Code)

	// Withdrawing more than the balance.
	resp = call(t, s, testToken, "market_withdraw", withdrawParams{Caller: testAlice, Currency: 3, Amount: "100"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketInsufficientFunds, resp.Error.Code)
}

func TestMarketLifecycleOverRPC(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, testToken, "market_setAdmin", setAdminParams{Caller: testOwner, Admin: testAdmin})
	var ok string
	requireResult(t, resp, &ok)

	resp = call(t, s, "", "market_getAdmin")
	var admin string
	requireResult(t, resp, &admin)
	require.Equal(t, testAdmin, admin)

	resp = call(t, s, testToken, "market_registerNftDeposit", registerNFTDepositParams{
		Caller: testAdmin, Collection: 7, Token: 42, User: testAlice,
	})
	requireResult(t, resp, &ok)

	resp = call(t, s, "", "market_getNftDeposit", tokenParams{Collection: 7, Token: 42})
	var depositOwner string
	requireResult(t, resp, &depositOwner)
	require.Equal(t, testAlice, depositOwner)

	resp = call(t, s, testToken, "market_ask", askParams{
		Caller: testAlice, Collection: 7, Token: 42, Currency: 3, Price: "500",
	})
	var askID idParams
	requireResult(t, resp, &askID)
	require.Equal(t, uint64(1), askID.ID)

	resp = call(t, s, "", "market_getAskById", idParams{ID: 1})
	var ask askResult
	requireResult(t, resp, &ask)
	require.Equal(t, "500", ask.Price)
	require.Equal(t, testAlice, ask.Seller)

	resp = call(t, s, "", "market_getAskIdByToken", tokenParams{Collection: 7, Token: 42})
	var resolved idParams
	requireResult(t, resp, &resolved)
	require.Equal(t, uint64(1), resolved.ID)

	resp = call(t, s, testToken, "market_registerDeposit", registerDepositParams{
		Caller: testAdmin, Currency: 3, Amount: "500", User: testBob,
	})
	requireResult(t, resp, &ok)

	resp = call(t, s, testToken, "market_buy", callerTokenParams{Caller: testBob, Collection: 7, Token: 42})
	requireResult(t, resp, &ok)

	resp = call(t, s, "", "market_getBalance", balanceParams{Currency: 3, Account: testBob})
	var balance string
	requireResult(t, resp, &balance)
	require.Equal(t, "0", balance)

	resp = call(t, s, "", "market_getTotal", currencyParams{Currency: 3})
	var total string
	requireResult(t, resp, &total)
	require.Equal(t, "500", total)

	resp = call(t, s, "", "market_getWithdrawById", idParams{ID: 1})
	var withdrawal withdrawalResult
	requireResult(t, resp, &withdrawal)
	require.Equal(t, testAlice, withdrawal.Account)
	require.Equal(t, "500", withdrawal.Amount)
	require.Equal(t, "matched", withdrawal.Cause)

	resp = call(t, s, "", "market_getNftWithdrawById", idParams{ID: 1})
	var nftWithdrawal nftWithdrawalResult
	requireResult(t, resp, &nftWithdrawal)
	require.Equal(t, testBob, nftWithdrawal.Account)
	require.Equal(t, uint64(7), nftWithdrawal.Collection)
	require.Equal(t, uint64(42), nftWithdrawal.Token)

	// The ask is gone, and the seller can pull the matched funds record.
	resp = call(t, s, "", "market_getAskById", idParams{ID: 1})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketNotFound, resp.Error.Code)
}

func TestRejectsOversizedAndMalformedBodies(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	recorder := httptest.NewRecorder()
	s.handle(recorder, req)
	var resp rpcTestResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder = httptest.NewRecorder()
	s.handle(recorder, req)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"jsonrpc":"1.0","id":1,"method":"market_getOwner"}`)))
	recorder = httptest.NewRecorder()
	s.handle(recorder, req)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}
