// Package receipt turns a POS transaction into printable receipt text.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/chaz8081/struk/internal/layout"
)

// FeedLines is the number of blank lines after the footer so the last
// printed line clears the tear bar.
const FeedLines = 3

// DefaultFooter is printed when the shop has no footer configured.
const DefaultFooter = "Terima Kasih"

const dateLayout = "02/01/2006 15.04"

// Shop is the static header and footer data printed on every receipt.
type Shop struct {
	Name     string
	Contacts []string
	Footer   []string
	Location *time.Location // nil prints CreatedAt in its own zone
}

// Receipt is a composed receipt.
type Receipt struct {
	Lines []string
	Total Money // sum of item subtotals
}

// String returns the receipt with every line terminated by "\n".
func (r Receipt) String() string {
	if len(r.Lines) == 0 {
		return ""
	}
	return strings.Join(r.Lines, "\n") + "\n"
}

type builder struct {
	l     layout.Layout
	lines []string
}

func (b *builder) add(lines ...string)          { b.lines = append(b.lines, lines...) }
func (b *builder) center(s string)              { b.add(b.l.Center(s)) }
func (b *builder) rule()                        { b.add(b.l.Rule()) }
func (b *builder) leftRight(left, right string) { b.add(b.l.LeftRight(left, right)) }

// Compose lays out tx for a printer described by l. It never fails: missing
// optional fields are left off and an empty item list totals zero.
func Compose(tx TransactionView, shop Shop, l layout.Layout) Receipt {
	b := &builder{l: l}

	if shop.Name != "" {
		b.center(shop.Name)
	}
	for _, c := range shop.Contacts {
		b.center(c)
	}
	b.rule()

	if !tx.CreatedAt.IsZero() {
		b.center(formatDate(tx.CreatedAt, shop.Location))
		b.rule()
	}

	b.leftRight("ID", orDash(tx.ID))
	if tx.Type != "" {
		b.leftRight("Type", tx.Type)
	}
	b.leftRight("Status", orDash(tx.Status))
	b.leftRight("Payment", paymentLabel(tx.PaymentType))
	b.rule()

	var total Money
	for _, it := range tx.Items {
		b.add(l.Wrap(orDash(it.Name))...)
		sub := it.Subtotal()
		total += sub
		b.leftRight(fmt.Sprintf("%d x %s", it.Quantity, it.UnitPrice), sub.String())
	}
	b.rule()

	b.leftRight("Total", total.String())
	if tx.Discount > 0 {
		b.leftRight("Discount", tx.Discount.String())
	}
	if tx.AmountPaid != nil && *tx.AmountPaid != 0 {
		b.leftRight("Paid", tx.AmountPaid.String())
	}
	if tx.Change != nil {
		b.leftRight("Change", tx.Change.String())
	}

	if tx.Note != "" {
		b.rule()
		b.add(l.Wrap("Note: " + tx.Note)...)
	}

	b.rule()
	footer := shop.Footer
	if len(footer) == 0 {
		footer = []string{DefaultFooter}
	}
	for _, f := range footer {
		b.center(f)
	}
	for range FeedLines {
		b.add("")
	}

	return Receipt{Lines: b.lines, Total: total}
}

func formatDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(dateLayout)
}

func paymentLabel(p string) string {
	if p == "" {
		return "CASH"
	}
	return strings.ToUpper(p)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
