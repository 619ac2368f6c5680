package smilepay

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Method is the Pay_zg code sent when a payment code is requested.
type Method int

const (
	MethodATM      Method = 2
	MethodIbon     Method = 4
	MethodFamiPort Method = 6
)

var ErrUnknownMethod = errors.New("smilepay: unknown payment method")

type methodInfo struct {
	slug  string
	label string
	// code picks the value the payer keys in at the ATM or kiosk
	code func(f Fields) string
}

var methods = map[Method]methodInfo{
	MethodATM: {
		slug:  "atm",
		label: "ATM Transfer",
		code:  func(f Fields) string { return f.ATMAccount },
	},
	MethodIbon: {
		slug:  "ibon",
		label: "7-11 ibon",
		code:  func(f Fields) string { return f.IbonCode },
	},
	MethodFamiPort: {
		slug:  "famiport",
		label: "FamiPort",
		code:  func(f Fields) string { return f.FamiPortCode },
	},
}

// ParseMethod accepts either the numeric Pay_zg code or the method slug.
func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		m := Method(n)
		if m.Valid() {
			return m, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
	for m, info := range methods {
		if info.slug == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func (m Method) Valid() bool {
	_, ok := methods[m]
	return ok
}

func (m Method) Code() string { return strconv.Itoa(int(m)) }

func (m Method) String() string {
	if info, ok := methods[m]; ok {
		return info.slug
	}
	return "unknown(" + strconv.Itoa(int(m)) + ")"
}

// Label is the human readable name used in notes and activity entries.
func (m Method) Label() string {
	if info, ok := methods[m]; ok {
		return info.label
	}
	return "Unknown"
}

// PaymentCode returns the code the payer needs for this method.
func (m Method) PaymentCode(f Fields) string {
	if info, ok := methods[m]; ok {
		return info.code(f)
	}
	return ""
}

// Fields holds the method specific values returned at issuance.
type Fields struct {
	ATMBankCode  string `json:"AtmBankNo,omitempty"`
	ATMAccount   string `json:"AtmNo,omitempty"`
	IbonCode     string `json:"IbonNo,omitempty"`
	FamiPortCode string `json:"FamiNO,omitempty"`
}

// MethodSet is the merchant's enabled method group: all, atm or cvs.
type MethodSet string

const (
	MethodSetAll MethodSet = "all"
	MethodSetATM MethodSet = "atm"
	MethodSetCVS MethodSet = "cvs"
)

func ParseMethodSet(s string) (MethodSet, error) {
	switch ms := MethodSet(strings.ToLower(strings.TrimSpace(s))); ms {
	case "":
		return MethodSetAll, nil
	case MethodSetAll, MethodSetATM, MethodSetCVS:
		return ms, nil
	default:
		return "", fmt.Errorf("smilepay: invalid payment method set %q", s)
	}
}

// Methods lists the methods enabled by the set, in display order.
func (ms MethodSet) Methods() []Method {
	switch ms {
	case MethodSetATM:
		return []Method{MethodATM}
	case MethodSetCVS:
		return []Method{MethodIbon, MethodFamiPort}
	default:
		return []Method{MethodATM, MethodIbon, MethodFamiPort}
	}
}

func (ms MethodSet) Allows(m Method) bool {
	for _, allowed := range ms.Methods() {
		if allowed == m {
			return true
		}
	}
	return false
}

// classifNames maps the Classif value of a callback to the channel that
// settled the payment.
var classifNames = map[string]string{
	"A": "Credit Card",
	"B": "ATM Virtual Account",
	"C": "Convenience Store",
	"E": "7-11 ibon",
	"F": "FamiPort",
	"I": "i-Money",
	"L": "LifeET",
	"O": "Black Cat Cash on Delivery",
	"P": "Black Cat Home Delivery",
	"Q": "Black Cat Reverse Logistics",
	"T": "C2C Pickup and Pay",
	"U": "C2C Pickup Only",
	"V": "B2C Pickup and Pay",
	"W": "B2C Pickup Only",
	"R": "C2B Customer Paid",
	"S": "C2B Store Paid",
}

// ClassifName returns a readable name for a callback Classif code, or the
// code itself when it is not known.
func ClassifName(classif string) string {
	if name, ok := classifNames[strings.ToUpper(strings.TrimSpace(classif))]; ok {
		return name
	}
	if classif == "" {
		return "Unknown"
	}
	return classif
}
