package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// NewToken builds an unpriced Token entity from metadata.
func (m TokenMeta) NewToken() *Token {
	return &Token{
		ID:               common.HexToAddress(m.Address),
		Symbol:           m.Symbol,
		Name:             m.Name,
		Decimals:         m.Decimals,
		DerivedETH:       decimal.Zero,
		WhitelistPools:   []common.Address{},
		TotalValueLocked: decimal.Zero,
		VolumeUSD:        decimal.Zero,
	}
}
