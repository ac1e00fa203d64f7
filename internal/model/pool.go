package model

// PoolModel tags the pricing encoding a pool exposes.
type PoolModel string

const (
	// PoolConcentrated is the sqrt-price (slot0) model.
	PoolConcentrated PoolModel = "concentrated-liquidity"
	// PoolConstantProduct is the reserves (getReserves) model.
	PoolConstantProduct PoolModel = "constant-product"
)

// Pool is a two-asset exchange contract with its resolved token metadata.
// Contract metadata cannot change, so a Pool is resolved once and cached for
// the process lifetime.
type Pool struct {
	Address string    `json:"address"`
	Model   PoolModel `json:"model"`
	Token0  TokenMeta `json:"token0"`
	Token1  TokenMeta `json:"token1"`
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
