package domain

import "strings"

// Address: идентичность участника (вызывающий, бенефициар, казначейство).
// Пустая строка соответствует нулевому адресу.
type Address string

const ZeroAddress Address = ""

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) String() string {
	return string(a)
}

// ParseAddress нормализует адрес, пришедший снаружи (HTTP/gRPC/конфиг).
func ParseAddress(s string) Address {
	return Address(strings.TrimSpace(s))
}

// ParseAddresses: то же для списков (например, ledger.approvers из конфига).
func ParseAddresses(items []string) []Address {
	out := make([]Address, 0, len(items))
	for _, s := range items {
		if a := ParseAddress(s); !a.IsZero() {
			out = append(out, a)
		}
	}
	return out
}
