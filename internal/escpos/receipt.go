package escpos

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
)

// Default receipt labels.
const (
	LabelTitle    = "RECEIPT"
	LabelSubtotal = "Subtotal"
	LabelTax      = "Tax"
	LabelTotal    = "Total"
)

// --- Text Layout Helpers ---

// padRight left-aligns s in n columns, truncating longer strings.
func padRight(s string, n int) string {
	if n <= 0 {
		return ""
	}
	l := utf8.RuneCountInString(s)
	if l >= n {
		return string([]rune(s)[:n])
	}
	return s + strings.Repeat(" ", n-l)
}

// padLeft right-aligns s in n columns. Longer strings keep their last n runes.
func padLeft(s string, n int) string {
	if n <= 0 {
		return ""
	}
	l := utf8.RuneCountInString(s)
	if l >= n {
		return string([]rune(s)[l-n:])
	}
	return strings.Repeat(" ", n-l) + s
}

func center(s string, width int) string {
	pad := (width - utf8.RuneCountInString(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func quantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func labelOr(label, def string) string {
	if label == "" {
		return def
	}
	return label
}

// Totals computes the subtotal, tax and total of bill. Tax is zero when the
// bill has no tax rate.
func Totals(bill model.Bill) (subtotal, tax, total float64) {
	for _, it := range bill.Items {
		subtotal += it.Qty.Float() * it.Price.Float()
	}
	if rate := bill.TaxRate.Float(); rate != 0 {
		tax = subtotal * rate
	}
	return subtotal, tax, subtotal + tax
}

// TaxLabel renders the tax label with the rate as a whole percentage.
func TaxLabel(label string, rate float64) string {
	return fmt.Sprintf("%s (%d%%)", labelOr(label, LabelTax), int64(math.Round(rate*100)))
}

// EncodeReceipt lays out bill as monospace text for a printer with
// opts.Width columns and returns the command stream ending in a partial cut.
func EncodeReceipt(bill model.Bill, opts model.EncodeOptions) []byte {
	width := opts.Width
	if width <= 0 {
		width = model.DefaultWidth
	}
	var buf bytes.Buffer
	line := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(lf)
	}

	buf.Write(cmdReset)

	buf.Write(cmdAlignCenter)
	title := bill.Title
	if title == "" {
		title = labelOr(opts.Labels.Title, LabelTitle)
	}
	line(center(title, width))

	buf.Write(cmdAlignLeft)
	separator := strings.Repeat("-", width)
	line(separator)

	nameWidth := max(0, width-10)
	for _, it := range bill.Items {
		qty, price := it.Qty.Float(), it.Price.Float()
		line(padRight(it.Name, nameWidth) + padLeft(quantity(qty), 3) + " x " + padLeft(money(price), 6))
	}

	line(separator)

	subtotal, tax, total := Totals(bill)
	rate := bill.TaxRate.Float()

	labelWidth := width - 8
	line(padRight(labelOr(opts.Labels.Subtotal, LabelSubtotal), labelWidth) + padLeft(money(subtotal), 8))
	if rate != 0 {
		line(padRight(TaxLabel(opts.Labels.Tax, rate), labelWidth) + padLeft(money(tax), 8))
	}
	line(padRight(labelOr(opts.Labels.Total, LabelTotal), labelWidth) + padLeft(money(total), 8))
	buf.WriteByte(lf)

	if bill.Footer != "" {
		buf.Write(cmdAlignCenter)
		line(bill.Footer)
	}

	buf.Write([]byte{lf, lf, lf})
	buf.Write(cmdPartialCut)

	return buf.Bytes()
}
