package model

// --- Bill Structures (as posted by the POS UI) ---

type Bill struct {
	Title   string     `json:"title"`
	Items   []LineItem `json:"items"`
	TaxRate Number     `json:"taxRate"`
	Footer  string     `json:"footer"`
}

type LineItem struct {
	Name  string `json:"name"`
	Qty   Number `json:"qty"`
	Price Number `json:"price"`
}

// Labels overrides the fixed words printed on a receipt. Empty fields keep the defaults.
type Labels struct {
	Title    string `json:"title,omitempty"`
	Subtotal string `json:"subtotal,omitempty"`
	Tax      string `json:"tax,omitempty"`
	Total    string `json:"total,omitempty"`
}

type EncodeOptions struct {
	Width  int    `json:"width"` // characters per line (32 for 58mm, 48 for 80mm)
	Labels Labels `json:"labels"`
}

const DefaultWidth = 32
