package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "treasury"
)

// Ключи состояния
const (
	// RedisKeyWriterLock: аренда единственного писателя леджера (SetNX + TTL)
	RedisKeyWriterLock = RedisNamespace + ":lock:ledger-writer"
	// RedisKeyLastReceipt: последняя опубликованная квитанция (msgpack)
	RedisKeyLastReceipt = RedisNamespace + ":ledger:last-receipt"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanLedgerEvents: квитанции закоммиченных транзакций
	RedisChanLedgerEvents = RedisNamespace + ":ledger:events"
)

// GetLockKey Генератор ключей для блокировок (если нужны динамические)
func GetLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:%s", RedisNamespace, resource)
}
