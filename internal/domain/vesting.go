package domain

// VestingEntry: запланированная разовая выплата бенефициару.
// Неизвестный id читается как нулевое значение этой структуры.
type VestingEntry struct {
	ID          uint64  `json:"id" msgpack:"id"`
	Beneficiary Address `json:"beneficiary" msgpack:"beneficiary"`
	ReleaseTime int64   `json:"release_time" msgpack:"release_time"` // unix seconds
	Amount      uint64  `json:"amount" msgpack:"amount"`
	Released    bool    `json:"released" msgpack:"released"`
}

// VestingRequest: предложение нового графика, инертное до набора порога.
type VestingRequest struct {
	ID          uint64    `json:"id"`
	Beneficiary Address   `json:"beneficiary"`
	RequestedBy Address   `json:"requested_by"`
	Amount      uint64    `json:"amount"`
	ReleaseTime int64     `json:"release_time"`
	Approvals   []Address `json:"approvals"`
	IsApproved  bool      `json:"is_approved"`

	// Started фиксирует материализацию в VestingEntry (терминальное состояние заявки)
	Started   bool   `json:"started"`
	VestingID uint64 `json:"vesting_id,omitempty"`
}

// WithdrawRequest: предложение немедленной выплаты из эскроу в казначейство.
type WithdrawRequest struct {
	ID          uint64    `json:"id"`
	Amount      uint64    `json:"amount"`
	RequestedBy Address   `json:"requested_by"`
	Approvals   []Address `json:"approvals"`
	IsApproved  bool      `json:"is_approved"`
	Processed   bool      `json:"processed"`
}
