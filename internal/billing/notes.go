package billing

import (
	"fmt"
	"strings"
	"time"

	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
)

const noteTimeLayout = "2006-01-02 15:04:05"

type noteLine struct {
	label string
	value string
}

func writeNote(title string, lines []noteLine) string {
	var b strings.Builder
	b.WriteString("=== " + title + " ===\n")
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", l.label, l.value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func successNote(ev *smilepay.CallbackEvent, processedAt time.Time) string {
	fee := "None"
	if ev.Fee.IsPositive() {
		fee = FormatNTD(ev.Fee)
	}
	return writeNote("SmilePay Payment Completed", []noteLine{
		{"Transaction No", ev.TransactionID},
		{"Payment Method", ev.MethodName()},
		{"Payment Date", ev.ProcessDate},
		{"Payment Time", ev.ProcessTime},
		{"Auth Code", ev.AuthCode},
		{"Amount", FormatNTD(ev.Amount)},
		{"Fee", fee},
		{"Processed At", processedAt.In(session.Taipei).Format(noteTimeLayout)},
	})
}

func failureNote(ev *smilepay.CallbackEvent, recordedAt time.Time) string {
	return writeNote("SmilePay Payment Failed", []noteLine{
		{"Trace ID", ev.TraceID},
		{"Transaction No", ev.TransactionID},
		{"Payment Method", ev.MethodName()},
		{"Attempted Amount", FormatNTD(ev.PurchaseAmount)},
		{"Actual Amount", FormatNTD(ev.Amount)},
		{"Process Date", ev.ProcessDate},
		{"Process Time", ev.ProcessTime},
		{"Reason", ev.FailureReason()},
		{"Recorded At", recordedAt.In(session.Taipei).Format(noteTimeLayout)},
	})
}

// FormatNTD renders whole dollars with thousands separators, e.g. NT$ 1,000.
func FormatNTD(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return "NT$ " + sign + b.String()
}
