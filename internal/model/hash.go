package model

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
)

var (
	// pseudo-md5s may be mixed case and may carry a [start:end] range
	pseudoMD5Re = regexp.MustCompile(`^([0-9a-fA-F]{32})(?:\[(\d+):(\d+)\])?$`)
	strictMD5Re = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// IsPseudoMD5 accepts the loose form used for lookups.
func IsPseudoMD5(s string) bool {
	return pseudoMD5Re.MatchString(s)
}

// IsStrictMD5 accepts only canonical lower-case md5 hex.
func IsStrictMD5(s string) bool {
	return strictMD5Re.MatchString(s)
}

// ParsePseudoMD5 splits a pseudo-md5 into its hash and optional byte range.
// hasRange is false when no [start:end] suffix is present.
func ParsePseudoMD5(s string) (hash string, start, end int, hasRange, ok bool) {
	m := pseudoMD5Re.FindStringSubmatch(s)
	if m == nil {
		return "", 0, 0, false, false
	}
	if m[2] == "" {
		return m[1], 0, 0, false, true
	}
	start, err1 := strconv.Atoi(m[2])
	end, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || start > end {
		return "", 0, 0, false, false
	}
	return m[1], start, end, true, true
}

// MD5Hex returns the canonical hash of a sequence.
func MD5Hex(sequence string) string {
	sum := md5.Sum([]byte(sequence))
	return hex.EncodeToString(sum[:])
}
