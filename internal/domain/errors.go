package domain

import "errors"

// Таксономия отказов леджера. Любая из них откатывает транзакцию целиком.
var (
	ErrUnauthorized        = errors.New("caller lacks required role")
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateApproval   = errors.New("approver already counted for this request")
	ErrAlreadyApproved     = errors.New("request already reached approval threshold")
	ErrNotYetApproved      = errors.New("request has not reached approval threshold")
	ErrAlreadyReleased     = errors.New("vesting already released")
	ErrAlreadyProcessed    = errors.New("withdraw request already processed")
	ErrAlreadyStarted      = errors.New("vesting request already started")
	ErrNotYetReleasable    = errors.New("release time not reached")
	ErrInsufficientBalance = errors.New("escrow balance is insufficient")

	// Политика самоподтверждения (ledger.allow_self_approval=false)
	ErrSelfApproval = errors.New("requester or beneficiary cannot approve own request")
	// Токен вернул false без ошибки
	ErrTransferFailed = errors.New("token transfer rejected")
)
