package receipt

import (
	"fmt"
	"strings"

	"github.com/chaz8081/struk/internal/layout"
)

// ComposeTagged renders tx for printer drivers that interpret <C>...</C>
// (center) and <R>...</R> (right-align) tags themselves. Alignment inside
// the tags is left to the driver; item lines still go through l so they
// never overflow the paper.
func ComposeTagged(tx TransactionView, shop Shop, l layout.Layout) string {
	var sb strings.Builder
	line := func(s string) {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	center := func(s string) { line("<C>" + s + "</C>") }
	right := func(label string, m Money) { line(fmt.Sprintf("<R>%-8s: Rp %s</R>", label, m)) }

	if shop.Name != "" {
		center(shop.Name)
	}
	for _, c := range shop.Contacts {
		center(c)
	}
	line(l.Rule())

	line("Trx ID : #" + orDash(tx.ID))
	if !tx.CreatedAt.IsZero() {
		line("Date   : " + formatDate(tx.CreatedAt, shop.Location))
	}
	line("Status : " + orDash(strings.ToUpper(tx.Status)))
	line("Payment: " + paymentLabel(tx.PaymentType))
	line(l.Rule())

	for _, it := range tx.Items {
		for _, n := range l.Wrap(orDash(it.Name)) {
			line(n)
		}
		line(l.LeftRight(fmt.Sprintf("%d x %s", it.Quantity, it.UnitPrice), it.Subtotal().String()))
	}
	line(l.Rule())

	right("Total", tx.ItemsTotal())
	if tx.Discount > 0 {
		right("Discount", tx.Discount)
	}
	if tx.AmountPaid != nil && *tx.AmountPaid != 0 {
		right("Paid", *tx.AmountPaid)
	}
	if tx.Change != nil {
		right("Change", *tx.Change)
	}

	if tx.Note != "" {
		line(l.Rule())
		for _, n := range l.Wrap("Note: " + tx.Note) {
			line(n)
		}
	}

	line("")
	footer := shop.Footer
	if len(footer) == 0 {
		footer = []string{DefaultFooter}
	}
	for _, f := range footer {
		center(f)
	}
	sb.WriteString(strings.Repeat("\n", FeedLines))
	return sb.String()
}
