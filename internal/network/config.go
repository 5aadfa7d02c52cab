package network

// Config is the network configuration snapshot fetched once per session.
type Config struct {
	ChainID               string `json:"erd_chain_id"`
	MinGasPrice           uint64 `json:"erd_min_gas_price"`
	MinGasLimit           uint64 `json:"erd_min_gas_limit"`
	GasPerDataByte        uint64 `json:"erd_gas_per_data_byte"`
	MinTransactionVersion uint32 `json:"erd_min_transaction_version"`
}

// GasLimitFor returns the move-balance gas limit for a payload of dataLen bytes.
func (c *Config) GasLimitFor(dataLen int) uint64 {
	return c.MinGasLimit + c.GasPerDataByte*uint64(dataLen)
}
