package model

// DecodeError is one line of the decode errors JSONL: a raw log that could
// not be turned into a typed event.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Decoder     string `json:"decoder,omitempty"`
	Error       string `json:"error"`
}

// NewDecodeError records err against the coordinates of log.
func NewDecodeError(log LogRecord, decoder string, err error) DecodeError {
	return DecodeError{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Emitter(),
		Topic0:      log.Topic0(),
		Decoder:     decoder,
		Error:       err.Error(),
	}
}
