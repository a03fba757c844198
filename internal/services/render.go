package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/escpos"
	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
)

// Paper widths in dots for 58mm and 80mm heads.
const (
	narrowPaperDots = 384
	widePaperDots   = 576
)

//go:embed templates/receipt.html
var receiptTemplate string

// Helper functions for the receipt template
var templateFuncs = template.FuncMap{
	"formatMoney": func(amount float64) string {
		return strconv.FormatFloat(amount, 'f', 2, 64)
	},
	"formatQty": func(qty float64) string {
		return strconv.FormatFloat(qty, 'f', -1, 64)
	},
}

var receiptTmpl = template.Must(template.New("receipt").Funcs(templateFuncs).Parse(receiptTemplate))

type receiptItem struct {
	Name      string
	Qty       float64
	Price     float64
	LineTotal float64
}

type receiptView struct {
	WidthPx  int
	Title    string
	Items    []receiptItem
	Labels   model.Labels
	Subtotal float64
	HasTax   bool
	TaxLabel string
	Tax      float64
	Total    float64
	Footer   string
}

// Renderer draws bills as HTML in headless Chrome and captures them as PNG.
type Renderer struct {
	execPath string
	settle   time.Duration
	logger   *zap.Logger
}

// NewRenderer returns a renderer using the Chrome binary at execPath. An
// empty path lets chromedp find the browser itself.
func NewRenderer(execPath string, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{execPath: execPath, settle: 300 * time.Millisecond, logger: logger}
}

// RenderBill renders bill with the built-in receipt template.
func (r *Renderer) RenderBill(ctx context.Context, bill model.Bill, opts model.EncodeOptions) ([]byte, error) {
	html, widthPx, err := receiptHTML(bill, opts)
	if err != nil {
		return nil, err
	}
	return r.RenderHTML(ctx, html, widthPx)
}

// RenderHTML loads html as a data URL and returns a full-page screenshot.
func (r *Renderer) RenderHTML(ctx context.Context, html string, widthPx int) ([]byte, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(widthPx, 600),
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	cdpCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	start := time.Now()
	var pngBytes []byte
	err := chromedp.Run(cdpCtx,
		chromedp.EmulateViewport(int64(widthPx), 600),
		chromedp.Navigate("data:text/html;charset=utf-8,"+urlEncode(html)),
		chromedp.Sleep(r.settle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pngBytes = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed generating image: %w", err)
	}

	r.logger.Debug("Receipt rendered",
		zap.String("job_id", model.JobIDFrom(ctx)),
		zap.Int("bytes", len(pngBytes)),
		zap.Duration("elapsed", time.Since(start)))
	return pngBytes, nil
}

// receiptHTML executes the receipt template and reports the page width in pixels.
func receiptHTML(bill model.Bill, opts model.EncodeOptions) (string, int, error) {
	width := opts.Width
	if width <= 0 {
		width = model.DefaultWidth
	}
	widthPx := narrowPaperDots
	if width > model.DefaultWidth {
		widthPx = widePaperDots
	}

	labels := model.Labels{
		Title:    labelOr(opts.Labels.Title, escpos.LabelTitle),
		Subtotal: labelOr(opts.Labels.Subtotal, escpos.LabelSubtotal),
		Tax:      labelOr(opts.Labels.Tax, escpos.LabelTax),
		Total:    labelOr(opts.Labels.Total, escpos.LabelTotal),
	}
	subtotal, tax, total := escpos.Totals(bill)
	view := receiptView{
		WidthPx:  widthPx,
		Title:    labelOr(bill.Title, labels.Title),
		Labels:   labels,
		Subtotal: subtotal,
		HasTax:   bill.TaxRate.Float() != 0,
		TaxLabel: escpos.TaxLabel(labels.Tax, bill.TaxRate.Float()),
		Tax:      tax,
		Total:    total,
		Footer:   bill.Footer,
	}
	for _, it := range bill.Items {
		view.Items = append(view.Items, receiptItem{
			Name:      it.Name,
			Qty:       it.Qty.Float(),
			Price:     it.Price.Float(),
			LineTotal: it.Qty.Float() * it.Price.Float(),
		})
	}

	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, view); err != nil {
		return "", 0, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), widthPx, nil
}

func labelOr(label, def string) string {
	if strings.TrimSpace(label) == "" {
		return def
	}
	return label
}

// urlEncode escapes HTML for use in a data URL.
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
