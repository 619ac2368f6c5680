package smilepay

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeDigest returns the Mid_smilepay verification number SmilePay
// attaches to callbacks.
//
//	A = merchantKey left-padded to 4 with '0'
//	B = integer part of amount left-padded to 8 with '0'
//	C = last 4 chars of traceID, non-digits replaced by '9'
//	D = A + B + C
//	result = 3 * sum(D[odd]) + 9 * sum(D[even])
func ComputeDigest(merchantKey string, amount decimal.Decimal, traceID string) int {
	a := leftPad(merchantKey, 4)
	b := leftPad(amount.Abs().Truncate(0).String(), 8)
	c := traceSuffix(traceID)

	d := a + b + c

	odd, even := 0, 0
	for i := 0; i < len(d); i++ {
		if i%2 == 1 {
			odd += digitValue(d[i])
		} else {
			even += digitValue(d[i])
		}
	}
	return odd*3 + even*9
}

// VerifyDigest reports whether digest matches the value computed for the
// callback. Surrounding whitespace in digest is ignored.
func VerifyDigest(merchantKey string, amount decimal.Decimal, traceID, digest string) bool {
	return strconv.Itoa(ComputeDigest(merchantKey, amount, traceID)) == strings.TrimSpace(digest)
}

func traceSuffix(traceID string) string {
	if len(traceID) > 4 {
		traceID = traceID[len(traceID)-4:]
	}
	traceID = leftPad(traceID, 4)

	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		ch := traceID[i]
		if ch >= '0' && ch <= '9' {
			out[i] = ch
		} else {
			out[i] = '9'
		}
	}
	return string(out)
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}

// non-digit bytes count as zero
func digitValue(ch byte) int {
	if ch < '0' || ch > '9' {
		return 0
	}
	return int(ch - '0')
}
