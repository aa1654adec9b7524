package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TransactionView is the read-only input to the composer.
type TransactionView struct {
	ID          string
	CreatedAt   time.Time
	Status      string
	Type        string // "onsite", "deliver"; optional
	PaymentType string
	Items       []Item
	Discount    Money
	AmountPaid  *Money
	Change      *Money
	Note        string

	// Total is the upstream total as stored by the backend. It is kept for
	// logging only; receipts always print the sum of the items.
	Total Money
}

// Item is one receipt line item.
type Item struct {
	Name      string
	Quantity  int64
	UnitPrice Money
}

// Subtotal returns Quantity * UnitPrice.
func (i Item) Subtotal() Money {
	return Money(i.Quantity) * i.UnitPrice
}

// ItemsTotal sums the item subtotals.
func (t TransactionView) ItemsTotal() Money {
	var total Money
	for _, it := range t.Items {
		total += it.Subtotal()
	}
	return total
}

type namedRef struct {
	Name string `json:"name"`
}

// wireItem accepts the item shapes sent by the web and mobile clients.
type wireItem struct {
	Name        string    `json:"name"`
	Quantity    int64     `json:"quantity"`
	Price       *Money    `json:"price"`
	CustomPrice *Money    `json:"customPrice"`
	UnitPrice   *Money    `json:"unitPrice"`
	Item        *namedRef `json:"item"`
	Product     *namedRef `json:"product"`
}

func (w wireItem) toItem() Item {
	it := Item{Quantity: w.Quantity}

	switch {
	case w.Item != nil && w.Item.Name != "":
		it.Name = w.Item.Name
	case w.Name != "":
		it.Name = w.Name
	case w.Product != nil:
		it.Name = w.Product.Name
	}

	switch {
	case w.Price != nil:
		it.UnitPrice = *w.Price
	case w.UnitPrice != nil:
		it.UnitPrice = *w.UnitPrice
	case w.CustomPrice != nil:
		it.UnitPrice = *w.CustomPrice
	}
	return it
}

type wireTransaction struct {
	ID              json.RawMessage `json:"id"`
	CreatedAt       *time.Time      `json:"created_at"`
	CreatedAtCamel  *time.Time      `json:"createdAt"`
	Status          string          `json:"status"`
	TransactionType string          `json:"transaction_type"`
	PaymentType     string          `json:"payment_type"`
	PaymentTypeAlt  string          `json:"paymentType"`
	Items           []wireItem      `json:"items"`
	Discount        Money           `json:"discount"`
	Payment         *Money          `json:"payment"`
	PaymentAmount   *Money          `json:"paymentAmount"`
	AmountPaid      *Money          `json:"amountPaid"`
	Change          *Money          `json:"change"`
	Note            *string         `json:"note"`
	Total           Money           `json:"total"`
}

// UnmarshalJSON decodes the backend transaction shape.
func (t *TransactionView) UnmarshalJSON(b []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	v := TransactionView{
		ID:          rawID(w.ID),
		Status:      w.Status,
		Type:        w.TransactionType,
		PaymentType: firstNonEmpty(w.PaymentType, w.PaymentTypeAlt),
		Discount:    w.Discount,
		Total:       w.Total,
		Change:      w.Change,
	}
	switch {
	case w.CreatedAt != nil:
		v.CreatedAt = *w.CreatedAt
	case w.CreatedAtCamel != nil:
		v.CreatedAt = *w.CreatedAtCamel
	}
	switch {
	case w.Payment != nil:
		v.AmountPaid = w.Payment
	case w.AmountPaid != nil:
		v.AmountPaid = w.AmountPaid
	case w.PaymentAmount != nil:
		v.AmountPaid = w.PaymentAmount
	}
	if w.Note != nil {
		v.Note = *w.Note
	}
	for _, wi := range w.Items {
		v.Items = append(v.Items, wi.toItem())
	}

	*t = v
	return nil
}

// ParseTransaction decodes a transaction, either bare or wrapped as
// {"transaction": {...}} the way the web client hands it to the printer.
func ParseTransaction(data []byte) (TransactionView, error) {
	var envelope struct {
		Transaction json.RawMessage `json:"transaction"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Transaction) > 0 && !bytes.Equal(envelope.Transaction, []byte("null")) {
		data = envelope.Transaction
	}

	var tx TransactionView
	if err := json.Unmarshal(data, &tx); err != nil {
		return TransactionView{}, fmt.Errorf("receipt: decode transaction: %w", err)
	}
	return tx, nil
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
