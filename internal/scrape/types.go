package scrape

import "time"

// Result is what a successful search returns to callers.
type Result struct {
	ProductID     int64     `json:"product_id"`
	MinPrice      int64     `json:"min_price"`
	TorobURL      string    `json:"torob_url"`
	SearchQuery   string    `json:"search_query"`
	FoundProducts int       `json:"found_products"`
	AllPrices     []int64   `json:"all_prices,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	FromCache     bool      `json:"from_cache"`
}

// BulkProduct identifies one product in a bulk search request.
type BulkProduct struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BulkItem is the per-product outcome of a bulk search.
type BulkItem struct {
	ProductID int64  `json:"product_id"`
	Status    string `json:"status"`
	Price     *int64 `json:"price,omitempty"`
	Message   string `json:"message,omitempty"`
}

// BulkReport aggregates the outcomes of a bulk search run.
type BulkReport struct {
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Items     []BulkItem `json:"items"`
}
