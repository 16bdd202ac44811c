package model

// ClassView is the JSON form of a live class.
type ClassView struct {
	Index   int    `json:"index"`
	Receipt string `json:"receipt"`
	Supply  uint64 `json:"supply"`
	Weight  uint64 `json:"weight"`
}

// PoolView is the JSON form of a pool record.
type PoolView struct {
	Address         string      `json:"address"`
	Admin           string      `json:"admin"`
	Vault           string      `json:"vault"`
	Mint            string      `json:"mint"`
	FeeNumerator    uint64      `json:"fee_numerator"`
	FeeDenominator  uint64      `json:"fee_denominator"`
	ClassCount      uint32      `json:"class_count"`
	CreationCounter uint64      `json:"creation_counter"`
	VaultBalance    uint64      `json:"vault_balance"`
	Classes         []ClassView `json:"classes"`
}
