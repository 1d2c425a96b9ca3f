package transfer

import (
	"fmt"
	"strings"
)

// ChecksumPolicy tells how downloads react to a missing or mismatching checksum
type ChecksumPolicy uint8

// Checksum policies. The zero value warns.
const (
	ChecksumWarn ChecksumPolicy = iota
	ChecksumFail
	ChecksumIgnore
)

func (p ChecksumPolicy) String() string {
	switch p {
	case ChecksumFail:
		return "fail"
	case ChecksumIgnore:
		return "ignore"
	default:
		return "warn"
	}
}

// ParseChecksumPolicy reads a policy name. An empty name is ChecksumWarn.
func ParseChecksumPolicy(name string) (ChecksumPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "warn":
		return ChecksumWarn, nil
	case "fail":
		return ChecksumFail, nil
	case "ignore":
		return ChecksumIgnore, nil
	default:
		return ChecksumWarn, fmt.Errorf("invalid checksum policy %q: expected one of fail, warn, ignore", name)
	}
}
