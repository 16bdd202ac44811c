package model

// Audit operations.
const (
	OpCreatePool  = "create_pool"
	OpAddClass    = "add_class"
	OpRemoveClass = "remove_class"
	OpReweight    = "reweight"
	OpStake       = "stake"
	OpUnstake     = "unstake"
)

// AuditRecord is emitted for every committed pool mutation.
type AuditRecord struct {
	Seq        uint64         `json:"seq"`
	Pool       string         `json:"pool"`
	Op         string         `json:"op"`
	Caller     string         `json:"caller"`
	ClassIndex int            `json:"class_index"`
	Receipt    string         `json:"receipt,omitempty"`
	Amount     uint64         `json:"amount,omitempty"`
	Fee        uint64         `json:"fee,omitempty"`
	Net        uint64         `json:"net,omitempty"`
	Redeem     uint64         `json:"redeem,omitempty"`
	Supply     uint64         `json:"supply"`
	Weight     uint64         `json:"weight,omitempty"`
	MovedFrom  string         `json:"moved_receipt,omitempty"`
	Weights    []WeightChange `json:"weights,omitempty"`
	Timestamp  string         `json:"ts"`
}

// WeightChange records one entry of a reweight batch.
type WeightChange struct {
	Receipt string `json:"receipt"`
	Old     uint64 `json:"old"`
	New     uint64 `json:"new"`
}

// OpFailure records an operation rejected by the engine.
type OpFailure struct {
	Line  int    `json:"line"`
	Op    string `json:"op"`
	Pool  string `json:"pool,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error"`
}
