package model

// TokenMeta is what the fee report needs to render an amount: launched assets always
// report 18 decimals, the reserve asset reports whatever its contract says.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}
