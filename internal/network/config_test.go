package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGasLimitFor(t *testing.T) {
	c := &Config{MinGasLimit: 50000, GasPerDataByte: 1500}
	assert.EqualValues(t, 50000, c.GasLimitFor(0))
	assert.EqualValues(t, 50000+1500*4, c.GasLimitFor(len("Tx 1")))
}

func TestDecodeGatewayConfig(t *testing.T) {
	raw := `{"erd_chain_id":"D","erd_min_gas_price":1000000000,"erd_min_gas_limit":50000,"erd_gas_per_data_byte":1500,"erd_min_transaction_version":1}`
	var c Config
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, "D", c.ChainID)
	assert.EqualValues(t, 1000000000, c.MinGasPrice)
	assert.EqualValues(t, 1, c.MinTransactionVersion)
}
