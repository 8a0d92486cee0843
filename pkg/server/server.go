package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidAddressFormat    = errors.New("invalid server address format")
	ErrInvalidPlayerNameFormat = errors.New("invalid player name format")
)

const (
	minPlayerNameLen = 5
	maxPlayerNameLen = 16
)

// Address is a parsed "host:port" server address.
type Address struct {
	Host string
	Port uint16
}

func (a Address) String() string {
	return a.Host + ":" + strconv.Itoa(int(a.Port))
}

// ParseAddress splits a "host:port" string on the first colon. The port must
// be a decimal number in [1, 65535]. Hostnames are not resolved here.
func ParseAddress(address string) (Address, error) {
	host, port, ok := strings.Cut(address, ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: missing port in %q", ErrInvalidAddressFormat, address)
	}
	if host == "" {
		return Address{}, fmt.Errorf("%w: missing host in %q", ErrInvalidAddressFormat, address)
	}
	if !isASCII(host) || strings.ContainsAny(host, " \t\r\n") {
		return Address{}, fmt.Errorf("%w: bad host %q", ErrInvalidAddressFormat, host)
	}
	if port == "" || !isDigits(port) {
		return Address{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidAddressFormat, port)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return Address{}, fmt.Errorf("%w: port %q out of range", ErrInvalidAddressFormat, port)
	}
	return Address{Host: host, Port: uint16(n)}, nil
}

// ValidateAddress reports whether address is an acceptable "host:port".
func ValidateAddress(address string) error {
	_, err := ParseAddress(address)
	return err
}

// ValidatePlayerName accepts ASCII names of 5 to 16 bytes.
func ValidatePlayerName(name string) error {
	if len(name) < minPlayerNameLen || len(name) > maxPlayerNameLen {
		return fmt.Errorf("%w: length must be %d-%d, got %d",
			ErrInvalidPlayerNameFormat, minPlayerNameLen, maxPlayerNameLen, len(name))
	}
	if !isASCII(name) {
		return fmt.Errorf("%w: %q contains non-ASCII characters", ErrInvalidPlayerNameFormat, name)
	}
	return nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
