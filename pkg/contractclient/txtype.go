package contractclient

// TxType selects the Ethereum transaction envelope used when sending a
// write call. Standard follows the chain's legacy gas-price model, which
// is what Polygon gas stations quote in and what the gas-bump watchdog
// reasons about.
type TxType int

const (
	// Standard is a legacy (type-0) transaction: a single gas price field.
	Standard TxType = iota
	// DynamicFee is an EIP-1559 (type-2) transaction.
	DynamicFee
)

// Receipt is a trimmed, JSON-RPC-shaped transaction receipt: the two gas
// fields arrive from the node as quantity strings ("0x..."), which is how
// the rest of this codebase (and the teacher's transaction-cost bookkeeping)
// expects to parse them.
type Receipt struct {
	TxHash            string
	Status            uint64
	BlockNumber       uint64
	GasUsed           string
	EffectiveGasPrice string
}
