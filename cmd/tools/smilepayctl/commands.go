package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"smilepay/internal/auth"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func digestCmd() *cobra.Command {
	var param string

	cmd := &cobra.Command{
		Use:   "digest [amount] [trace-id]",
		Short: "Compute the Mid_smilepay value for a notification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), smilepay.ComputeDigest(param, amount, args[1]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&param, "param", "p", os.Getenv("SMILEPAY_MID_PARAM"), "Merchant verification parameter")
	return cmd
}

type callbackOptions struct {
	invoiceID  string
	amount     string
	purchAmt   string
	traceID    string
	paymentNo  string
	responseID string
	classif    string
	errDesc    string
	param      string
}

// buildCallback assembles the form SmilePay posts after a payment. The
// digest is computed over Purchamt, which defaults to the amount.
func buildCallback(o callbackOptions) (url.Values, error) {
	amount, err := decimal.NewFromString(o.amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", o.amount, err)
	}
	purchAmt := amount
	if o.purchAmt != "" {
		if purchAmt, err = decimal.NewFromString(o.purchAmt); err != nil {
			return nil, fmt.Errorf("invalid purchase amount %q: %w", o.purchAmt, err)
		}
	}

	v := url.Values{}
	v.Set("Od_sob", o.invoiceID)
	v.Set("Data_id", o.invoiceID)
	v.Set("Amount", amount.String())
	v.Set("Purchamt", purchAmt.String())
	v.Set("Response_id", o.responseID)
	v.Set("Smseid", o.traceID)
	v.Set("Classif", o.classif)
	v.Set("Process_date", time.Now().In(session.Taipei).Format("2006/01/02"))
	if o.paymentNo != "" {
		v.Set("Payment_no", o.paymentNo)
	}
	if o.errDesc != "" {
		v.Set("Errdesc", o.errDesc)
	}
	if p := strings.TrimSpace(o.param); p != "" {
		v.Set("Mid_smilepay", strconv.Itoa(smilepay.ComputeDigest(p, purchAmt, o.traceID)))
	}
	return v, nil
}

func callbackCmd() *cobra.Command {
	var (
		o       callbackOptions
		target  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "callback [invoice-id] [amount]",
		Short: "Post a signed mock payment notification to the callback endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.invoiceID, o.amount = args[0], args[1]
			if o.traceID == "" {
				o.traceID = strconv.FormatInt(time.Now().Unix(), 10)
			}

			form, err := buildCallback(o)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("post callback: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if err != nil {
				return err
			}
			ack := strings.TrimSpace(string(body))
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", resp.StatusCode, ack)
			if ack != smilepay.AckOK {
				return fmt.Errorf("callback was not acknowledged")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "url", "u", "http://localhost:8080/v1/callbacks/smilepay", "Callback endpoint")
	cmd.Flags().StringVar(&o.traceID, "trace", "", "Smseid trace id (default: current unix time)")
	cmd.Flags().StringVar(&o.purchAmt, "purchamt", "", "Purchamt before fees (default: amount)")
	cmd.Flags().StringVar(&o.paymentNo, "payment-no", "", "Payment_no transaction id")
	cmd.Flags().StringVar(&o.responseID, "response-id", "1", "1 for a successful payment")
	cmd.Flags().StringVar(&o.classif, "classif", "B", "Payment channel code")
	cmd.Flags().StringVar(&o.errDesc, "errdesc", "", "Errdesc for failed payments")
	cmd.Flags().StringVarP(&o.param, "param", "p", os.Getenv("SMILEPAY_MID_PARAM"), "Merchant verification parameter used to sign")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		role   string
		ttl    time.Duration
		secret string
		iss    string
	)

	cmd := &cobra.Command{
		Use:   "token [client-id]",
		Short: "Mint a bearer token for the payment endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("token secret is not set (AUTH_TOKEN_SECRET or --secret)")
			}
			token, err := auth.NewJWTAuthenticator(secret, iss, iss).GenerateToken(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	iDefault := os.Getenv("AUTH_TOKEN_ISS")
	if iDefault == "" {
		iDefault = "smilepay-billing"
	}

	cmd.Flags().StringVarP(&role, "role", "r", auth.RoleClient, "client or staff")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_TOKEN_SECRET"), "HMAC secret")
	cmd.Flags().StringVar(&iss, "iss", iDefault, "Issuer and audience")
	return cmd
}

func hashPassCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hashpass [password]",
		Short: "Print the bcrypt hash for AUTH_BASIC_PASS_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}
