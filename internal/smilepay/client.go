package smilepay

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"
)

const (
	DefaultAPIURL  = "https://ssl.smse.com.tw/api/SPPayment.asp"
	DefaultTimeout = 30 * time.Second
	userAgent      = "smilepay-billing/1.0"
)

var (
	ErrUpstream        = errors.New("smilepay: upstream call failed")
	ErrBusinessFailure = errors.New("smilepay: payment code request rejected")
)

// Credentials are the merchant values SmilePay assigns.
type Credentials struct {
	Dcvc      string
	VerifyKey string
	// Roturl is where SmilePay posts the payment notification. Optional.
	Roturl string
}

func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Dcvc) != "" && strings.TrimSpace(c.VerifyKey) != ""
}

// IssueRequest asks SmilePay for a payment code for one invoice.
type IssueRequest struct {
	InvoiceID string
	Amount    decimal.Decimal
	Method    Method
	PayerName string
	Phone     string
	Address   string
	Email     string
}

// IssueResponse is the XML document returned by SPPayment.asp. The root
// element name is not checked.
type IssueResponse struct {
	Status     string `xml:"Status"`
	Desc       string `xml:"Desc"`
	SmilePayNO string `xml:"SmilePayNO"`
	Amount     string `xml:"Amount"`
	PayEndDate string `xml:"PayEndDate"`
	AtmBankNo  string `xml:"AtmBankNo"`
	AtmNo      string `xml:"AtmNo"`
	IbonNo     string `xml:"IbonNo"`
	FamiNO     string `xml:"FamiNO"`
}

func (r *IssueResponse) Fields() Fields {
	return Fields{
		ATMBankCode:  strings.TrimSpace(r.AtmBankNo),
		ATMAccount:   strings.TrimSpace(r.AtmNo),
		IbonCode:     strings.TrimSpace(r.IbonNo),
		FamiPortCode: strings.TrimSpace(r.FamiNO),
	}
}

// Issuer is implemented by Client and by test doubles.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (*IssueResponse, error)
}

type Client struct {
	creds      Credentials
	apiURL     string
	httpClient *http.Client
}

func NewClient(creds Credentials, apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		creds:      creds,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Credentials() Credentials { return c.creds }

// Issue requests a payment code. Network errors, non-200 replies and
// unreadable XML wrap ErrUpstream; a Status other than "1" wraps
// ErrBusinessFailure with the provider's Desc.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*IssueResponse, error) {
	fullURL := c.apiURL + "?" + c.query(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK || len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	res, err := decodeIssueResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	if strings.TrimSpace(res.Status) != "1" {
		desc := strings.TrimSpace(res.Desc)
		if desc == "" {
			desc = "status " + res.Status
		}
		return nil, fmt.Errorf("%w: %s", ErrBusinessFailure, desc)
	}

	return res, nil
}

func decodeIssueResponse(raw []byte) (*IssueResponse, error) {
	var res IssueResponse
	dec := xml.NewDecoder(bytes.NewReader(raw))
	// replies may declare big5
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// query builds the parameters in the order SmilePay documents them,
// percent-encoded per RFC 3986.
func (c *Client) query(req IssueRequest) string {
	params := [][2]string{
		{"Rvg2c", "1"},
		{"Dcvc", c.creds.Dcvc},
		{"Od_sob", req.InvoiceID},
		{"Amount", req.Amount.StringFixed(0)},
		{"Pur_name", req.PayerName},
		{"Tel_number", req.Phone},
		{"Mobile_number", req.Phone},
		{"Address", req.Address},
		{"Email", req.Email},
		{"Invoice_name", ""},
		{"Invoice_num", ""},
		{"Remark", "Invoice: " + req.InvoiceID},
		{"Roturl", c.creds.Roturl},
		{"Pay_zg", req.Method.Code()},
		{"Verify_key", c.creds.VerifyKey},
	}

	var b strings.Builder
	for i, kv := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(rfc3986Escape(kv[0]))
		b.WriteByte('=')
		b.WriteString(rfc3986Escape(kv[1]))
	}
	return b.String()
}

// url.QueryEscape encodes spaces as '+'; RFC 3986 wants %20.
func rfc3986Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
