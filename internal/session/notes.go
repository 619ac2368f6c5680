package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
)

// NotesTag marks the session block kept inside an invoice's notes.
const NotesTag = "SmilePay_Data:"

const createdTimeLayout = "2006-01-02 15:04:05"

// NotesAccessor reads and writes the free-text notes of an invoice.
type NotesAccessor interface {
	GetInvoiceNotes(ctx context.Context, invoiceID string) (string, error)
	SetInvoiceNotes(ctx context.Context, invoiceID, notes string) error
}

// NotesStore keeps the session as a tagged JSON block in the invoice notes,
// the layout used by existing installations.
type NotesStore struct {
	notes NotesAccessor
	now   Clock
}

func NewNotesStore(notes NotesAccessor, now Clock) *NotesStore {
	if now == nil {
		now = time.Now
	}
	return &NotesStore{notes: notes, now: now}
}

func (s *NotesStore) Load(ctx context.Context, invoiceID string) (*PaymentSession, error) {
	ps, err := s.Get(ctx, invoiceID)
	if err != nil || ps == nil {
		return nil, err
	}
	if ps.Expired(s.now()) {
		return nil, nil
	}
	return ps, nil
}

func (s *NotesStore) Get(ctx context.Context, invoiceID string) (*PaymentSession, error) {
	notes, err := s.notes.GetInvoiceNotes(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("read invoice notes: %w", err)
	}
	ps, ok := ExtractBlock(notes)
	if !ok {
		return nil, nil
	}
	ps.InvoiceID = invoiceID
	return ps, nil
}

func (s *NotesStore) Save(ctx context.Context, ps *PaymentSession) error {
	notes, err := s.notes.GetInvoiceNotes(ctx, ps.InvoiceID)
	if err != nil {
		return fmt.Errorf("read invoice notes: %w", err)
	}
	updated, err := AppendBlock(notes, ps)
	if err != nil {
		return err
	}
	if err := s.notes.SetInvoiceNotes(ctx, ps.InvoiceID, updated); err != nil {
		return fmt.Errorf("write invoice notes: %w", err)
	}
	return nil
}

func (s *NotesStore) Delete(ctx context.Context, invoiceID string) error {
	notes, err := s.notes.GetInvoiceNotes(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("read invoice notes: %w", err)
	}
	if err := s.notes.SetInvoiceNotes(ctx, invoiceID, strings.TrimSpace(StripBlocks(notes))); err != nil {
		return fmt.Errorf("write invoice notes: %w", err)
	}
	return nil
}

// flexString accepts a JSON string or number; older blocks were written
// with either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type notesBlock struct {
	SmilePayNO  flexString `json:"SmilePayNO"`
	Amount      flexString `json:"Amount"`
	PayEndDate  flexString `json:"PayEndDate"`
	AtmBankNo   flexString `json:"AtmBankNo"`
	AtmNo       flexString `json:"AtmNo"`
	IbonNo      flexString `json:"IbonNo"`
	FamiNO      flexString `json:"FamiNO"`
	PayMethod   flexString `json:"PayMethod"`
	CreatedTime flexString `json:"CreatedTime"`
}

// ExtractBlock decodes the first tagged block in notes. A missing block, bad
// JSON, an empty SmilePayNO or an unknown method all report false.
func ExtractBlock(notes string) (*PaymentSession, bool) {
	pos := 0
	for {
		start, end, ok := nextBlock(notes, pos)
		if !ok {
			return nil, false
		}
		if end < 0 {
			pos = start + len(NotesTag)
			continue
		}
		return decodeBlock(notes[start+len(NotesTag) : end])
	}
}

func decodeBlock(raw string) (*PaymentSession, bool) {
	var b notesBlock
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, false
	}
	if strings.TrimSpace(string(b.SmilePayNO)) == "" {
		return nil, false
	}
	method, err := smilepay.ParseMethod(string(b.PayMethod))
	if err != nil {
		return nil, false
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(string(b.Amount)))
	if err != nil {
		amount = decimal.Zero
	}

	var createdAt time.Time
	if t, err := time.ParseInLocation(createdTimeLayout, string(b.CreatedTime), Taipei); err == nil {
		createdAt = t
	}

	return &PaymentSession{
		ProviderCode: string(b.SmilePayNO),
		Method:       method,
		AmountDue:    amount,
		ExpiresAt:    ParsePayEndDate(string(b.PayEndDate)),
		CreatedAt:    createdAt,
		Fields: smilepay.Fields{
			ATMBankCode:  string(b.AtmBankNo),
			ATMAccount:   string(b.AtmNo),
			IbonCode:     string(b.IbonNo),
			FamiPortCode: string(b.FamiNO),
		},
	}, true
}

// StripBlocks removes every tagged block and leaves other text untouched.
func StripBlocks(notes string) string {
	pos := 0
	for {
		start, end, ok := nextBlock(notes, pos)
		if !ok {
			return notes
		}
		if end < 0 {
			pos = start + len(NotesTag)
			continue
		}
		notes = notes[:start] + notes[end:]
		pos = start
	}
}

// AppendBlock replaces any existing block with one for ps.
func AppendBlock(notes string, ps *PaymentSession) (string, error) {
	raw, err := encodeBlock(ps)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(StripBlocks(notes) + "\n\n" + NotesTag + raw), nil
}

func encodeBlock(ps *PaymentSession) (string, error) {
	b := notesBlock{
		SmilePayNO: flexString(ps.ProviderCode),
		Amount:     flexString(ps.AmountDue.String()),
		PayEndDate: flexString(FormatPayEndDate(ps.ExpiresAt)),
		AtmBankNo:  flexString(ps.Fields.ATMBankCode),
		AtmNo:      flexString(ps.Fields.ATMAccount),
		IbonNo:     flexString(ps.Fields.IbonCode),
		FamiNO:     flexString(ps.Fields.FamiPortCode),
		PayMethod:  flexString(ps.Method.Code()),
	}
	if !ps.CreatedAt.IsZero() {
		b.CreatedTime = flexString(ps.CreatedAt.In(Taipei).Format(createdTimeLayout))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return "", fmt.Errorf("encode session block: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// nextBlock finds the tagged block at or after pos. end is the offset just
// past the closing brace, or -1 when the tag is not followed by an object.
func nextBlock(notes string, pos int) (start, end int, ok bool) {
	i := strings.Index(notes[pos:], NotesTag)
	if i < 0 {
		return 0, 0, false
	}
	start = pos + i
	body := start + len(NotesTag)
	if body >= len(notes) || notes[body] != '{' {
		return start, -1, true
	}

	dec := json.NewDecoder(strings.NewReader(notes[body:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err == nil {
		return start, body + int(dec.InputOffset()), true
	}

	// not valid JSON: the block runs to the first closing brace
	if j := strings.IndexByte(notes[body:], '}'); j >= 0 {
		return start, body + j + 1, true
	}
	return start, -1, true
}
