package domain

import (
	"context"
	"time"
)

// Имена событий журнала транзакции
const (
	EventTransfer               = "Transfer"
	EventTokenVestingAdded      = "TokenVestingAdded"
	EventTokenVestingReleased   = "TokenVestingReleased"
	EventVestingRequestCreated  = "VestingRequestCreated"
	EventVestingRequestApprove  = "VestingRequestApprove"
	EventWithdrawRequestCreated = "WithdrawRequestCreated"
	EventSignatureApproved      = "SignatureApproved"
)

// Event: плоская запись журнала. Заполняются только поля, относящиеся к Name,
// поэтому одна структура кодируется и в JSON, и в msgpack без реестра типов.
type Event struct {
	Name        string  `json:"event" msgpack:"event"`
	VestingID   uint64  `json:"vesting_id,omitempty" msgpack:"vesting_id,omitempty"`
	RequestID   uint64  `json:"request_id,omitempty" msgpack:"request_id,omitempty"`
	Beneficiary Address `json:"beneficiary,omitempty" msgpack:"beneficiary,omitempty"`
	RequestedBy Address `json:"requested_by,omitempty" msgpack:"requested_by,omitempty"`
	Approver    Address `json:"approver,omitempty" msgpack:"approver,omitempty"`
	From        Address `json:"from,omitempty" msgpack:"from,omitempty"`
	To          Address `json:"to,omitempty" msgpack:"to,omitempty"`
	Amount      uint64  `json:"amount" msgpack:"amount"`
}

func TransferEvent(from, to Address, value uint64) Event {
	return Event{Name: EventTransfer, From: from, To: to, Amount: value}
}

func TokenVestingAdded(vestingID uint64, beneficiary Address, amount uint64) Event {
	return Event{Name: EventTokenVestingAdded, VestingID: vestingID, Beneficiary: beneficiary, Amount: amount}
}

func TokenVestingReleased(vestingID uint64, beneficiary Address, amount uint64) Event {
	return Event{Name: EventTokenVestingReleased, VestingID: vestingID, Beneficiary: beneficiary, Amount: amount}
}

func VestingRequestCreated(requestID uint64, beneficiary Address, amount uint64, requestedBy Address) Event {
	return Event{Name: EventVestingRequestCreated, RequestID: requestID, Beneficiary: beneficiary, Amount: amount, RequestedBy: requestedBy}
}

func VestingRequestApprove(requestID uint64, approver Address) Event {
	return Event{Name: EventVestingRequestApprove, RequestID: requestID, Approver: approver}
}

func WithdrawRequestCreated(requestID uint64, amount uint64) Event {
	return Event{Name: EventWithdrawRequestCreated, RequestID: requestID, Amount: amount}
}

func SignatureApproved(requestID uint64, approver Address) Event {
	return Event{Name: EventSignatureApproved, RequestID: requestID, Approver: approver}
}

// Receipt описывает итог закоммиченной транзакции, события в порядке эмиссии.
type Receipt struct {
	TxID      string    `json:"tx_id" msgpack:"tx_id"`
	Operation string    `json:"operation" msgpack:"operation"`
	Caller    Address   `json:"caller" msgpack:"caller"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Events    []Event   `json:"events" msgpack:"events"`
	// ResultID: id созданной записи для операций создания
	ResultID uint64 `json:"result_id,omitempty" msgpack:"result_id,omitempty"`
}

// Emitter принимает события внешних участников транзакции (например, токена).
type Emitter func(Event)

type emitterKey struct{}

// WithEmitter прокидывает журнал текущей транзакции через контекст.
func WithEmitter(ctx context.Context, emit Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emit)
}

// Emit пишет событие в журнал транзакции, если вызов идет внутри нее.
func Emit(ctx context.Context, ev Event) {
	if emit, ok := ctx.Value(emitterKey{}).(Emitter); ok && emit != nil {
		emit(ev)
	}
}
