package domain

// Counters: монотонные счетчики идентификаторов (следующий выдаваемый id).
type Counters struct {
	NextVestingID  uint64 `json:"next_vesting_id"`
	NextRequestID  uint64 `json:"next_request_id"`
	NextWithdrawID uint64 `json:"next_withdraw_id"`
}

// Snapshot: полное состояние леджера для холодной загрузки при старте.
type Snapshot struct {
	Counters         Counters
	Vestings         []VestingEntry
	VestingRequests  []VestingRequest
	WithdrawRequests []WithdrawRequest
}

// ChangeSet: записи, затронутые одной транзакцией, плюс счетчики после нее.
// Хранилище применяет его атомарно; ошибка коммита откатывает транзакцию леджера.
type ChangeSet struct {
	TxID             string
	Counters         Counters
	Vestings         []VestingEntry
	VestingRequests  []VestingRequest
	WithdrawRequests []WithdrawRequest

	// Removed заполняется только компенсацией: запись, записанная чекпоинтом
	// откаченной транзакции, которой не было до ее начала.
	Removed Removed
}

type Removed struct {
	Vestings         []uint64
	VestingRequests  []uint64
	WithdrawRequests []uint64
}

func (c *ChangeSet) IsEmpty() bool {
	return len(c.Vestings) == 0 && len(c.VestingRequests) == 0 && len(c.WithdrawRequests) == 0 &&
		len(c.Removed.Vestings) == 0 && len(c.Removed.VestingRequests) == 0 && len(c.Removed.WithdrawRequests) == 0
}
