package service_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/dumbtokens/launch-watcher/internal/module/token/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"}]`

func writeEtherscan(w http.ResponseWriter, status string, message string, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"message": message,
		"result":  result,
	})
}

func setupEtherscan(t *testing.T, handler http.HandlerFunc) service.EtherscanService {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := shared.SetupCfg(map[string]interface{}{
		"etherscan.url":              srv.URL,
		"etherscan.api-key":          "key",
		"etherscan.rate-limit":       0,
		"pipeline.abi-initial-delay": time.Millisecond,
	})
	return service.NewEtherscanService(cfg, zerolog.Nop())
}

func TestFetchContractABIRetriesUntilSuccess(t *testing.T) {
	var calls int32
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getabi", r.URL.Query().Get("action"))
		assert.Equal(t, "key", r.URL.Query().Get("apikey"))
		if atomic.AddInt32(&calls, 1) < 3 {
			writeEtherscan(w, "0", "NOTOK", "Max rate limit reached")
			return
		}
		writeEtherscan(w, "1", "OK", tokenABI)
	})

	result := etherscan.FetchContractABI(context.Background(), "0x1111111111111111111111111111111111111111")
	require.True(t, result.OK(), "%v", result.Err)
	assert.Contains(t, result.Value.Methods, "name")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchContractABIGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeEtherscan(w, "0", "NOTOK", "Contract source code not verified")
	})

	result := etherscan.FetchContractABI(context.Background(), "0x1111111111111111111111111111111111111111")
	assert.False(t, result.OK())
	assert.False(t, result.Found)
	assert.NoError(t, result.Err)
	assert.Equal(t, int32(shared.DefaultMaxRetries), atomic.LoadInt32(&calls))
}

func TestFetchContractABITransportFailure(t *testing.T) {
	var calls int32
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	result := etherscan.FetchContractABI(context.Background(), "0x1111111111111111111111111111111111111111")
	assert.False(t, result.OK())
	assert.ErrorIs(t, result.Err, shared.ErrRetriesExhausted)
	assert.Equal(t, int32(shared.DefaultMaxRetries), atomic.LoadInt32(&calls))
}

func TestFetchContractSourceCode(t *testing.T) {
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "0xverified" {
			writeEtherscan(w, "1", "OK", []map[string]string{{"SourceCode": "contract DUMB {}", "ContractName": "DUMB"}})
			return
		}
		writeEtherscan(w, "1", "OK", []map[string]string{{"SourceCode": "", "ContractName": ""}})
	})

	source, err := etherscan.FetchContractSourceCode(context.Background(), "0xverified")
	require.NoError(t, err)
	assert.Equal(t, "contract DUMB {}", source)

	_, err = etherscan.FetchContractSourceCode(context.Background(), "0xunverified")
	assert.ErrorIs(t, err, service.ErrContractNotVerified)
}

func TestFindDeployerAddress(t *testing.T) {
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "txlist", r.URL.Query().Get("action"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		if r.URL.Query().Get("address") == "0xempty" {
			writeEtherscan(w, "0", "No transactions found", []string{})
			return
		}
		writeEtherscan(w, "1", "OK", []map[string]string{{"hash": "0xabc", "from": "0xdeployer"}})
	})

	deployer := etherscan.FindDeployerAddress(context.Background(), "0xtoken")
	require.True(t, deployer.OK())
	assert.Equal(t, "0xdeployer", deployer.Value)

	empty := etherscan.FindDeployerAddress(context.Background(), "0xempty")
	assert.False(t, empty.Found)
	assert.NoError(t, empty.Err)
}

func TestGetBalanceOfToken(t *testing.T) {
	etherscan := setupEtherscan(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tokenbalance", r.URL.Query().Get("action"))
		assert.Equal(t, "0xweth", r.URL.Query().Get("contractaddress"))
		assert.Equal(t, "0xpair", r.URL.Query().Get("address"))
		writeEtherscan(w, "1", "OK", "100000000000000000000")
	})

	balance, err := etherscan.GetBalanceOfToken(context.Background(), "0xweth", "0xpair")
	require.NoError(t, err)
	expected, _ := new(big.Int).SetString("100000000000000000000", 10)
	assert.Equal(t, 0, expected.Cmp(balance))
}
