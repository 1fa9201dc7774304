package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ticket-market/internal/status"
)

// ParseAddress validates a 0x-prefixed 20-byte account address in any letter
// case.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "0x") || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q: %w", s, status.ErrInvalidAddress)
	}
	return common.HexToAddress(s), nil
}

// ChecksumAddress returns the EIP-55 mixed-case form of an account address.
func ChecksumAddress(s string) (string, error) {
	addr, err := ParseAddress(s)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
