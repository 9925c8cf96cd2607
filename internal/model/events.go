package model

// Event names carried by TypedEvent.EventName.
const (
	EventPoolCreated       = "PoolCreated"
	EventFeeAmountEnabled  = "FeeAmountEnabled"
	EventInitialize        = "Initialize"
	EventSwap              = "Swap"
	EventMint              = "Mint"
	EventBurn              = "Burn"
	EventCollect           = "Collect"
	EventIncreaseLiquidity = "IncreaseLiquidity"
	EventDecreaseLiquidity = "DecreaseLiquidity"
	EventPositionCollect   = "PositionCollect"
	EventTransfer          = "Transfer"
)

// PoolCreatedEventData is the decoded factory PoolCreated payload.
type PoolCreatedEventData struct {
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
	Pool        string `json:"pool"`
}

// FeeAmountEnabledEventData is the decoded factory FeeAmountEnabled payload.
type FeeAmountEnabledEventData struct {
	Fee         uint32 `json:"fee"`
	TickSpacing int32  `json:"tick_spacing"`
}

// InitializeEventData is the decoded pool Initialize payload.
type InitializeEventData struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// SwapEventData is the decoded Swap event payload.
type SwapEventData struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int32  `json:"tick"`
}

// MintEventData is the decoded Mint event payload.
type MintEventData struct {
	Sender    string `json:"sender"`
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// BurnEventData is the decoded Burn event payload.
type BurnEventData struct {
	Owner     string `json:"owner"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// CollectEventData is the decoded pool Collect event payload.
type CollectEventData struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// LiquidityEventData is the decoded IncreaseLiquidity / DecreaseLiquidity payload
// emitted by the position manager.
type LiquidityEventData struct {
	TokenID   string `json:"token_id"`
	Liquidity string `json:"liquidity"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// PositionCollectEventData is the decoded position manager Collect payload.
type PositionCollectEventData struct {
	TokenID   string `json:"token_id"`
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// TransferEventData is the decoded position NFT Transfer payload.
type TransferEventData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id"`
}
