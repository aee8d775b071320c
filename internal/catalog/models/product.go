package models

// SearchQuery is one immutable catalog search request. Prices are in minor
// currency units; PriceLowCents bounds the list price and PriceHighCents
// bounds the sale price.
type SearchQuery struct {
	Text           string  `json:"query"`
	Limit          int     `json:"limit"`
	Skip           int     `json:"skip"`
	PriceLowCents  *int64  `json:"price_low,omitempty"`
	PriceHighCents *int64  `json:"price_high,omitempty"`
	Gender         *string `json:"gender,omitempty"`
}

// Size is one size option with its per-warehouse stock quantities.
type Size struct {
	Name            string `json:"name"`
	OrigName        string `json:"origName"`
	StockQuantities []int  `json:"stockQuantities"`
}

// InStock reports whether any warehouse holds the size.
func (s Size) InStock() bool {
	for _, q := range s.StockQuantities {
		if q > 0 {
			return true
		}
	}
	return false
}

// DetailRecord overlays enrichment fields fetched separately from search.
type DetailRecord struct {
	ID          int64    `json:"id"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []Size   `json:"sizes,omitempty"`
	Description string   `json:"description,omitempty"`
}

// BucketSource names the strategy that produced a bucket.
type BucketSource string

const (
	BucketSourceStaticMap    BucketSource = "static-map"
	BucketSourceCache        BucketSource = "cache"
	BucketSourceProbe        BucketSource = "probe"
	BucketSourceHashFallback BucketSource = "hash-fallback"
)

// BucketAssignment records which image shard hosts a product's photos.
type BucketAssignment struct {
	ProductID int64        `json:"productId"`
	Bucket    int          `json:"bucket"`
	Source    BucketSource `json:"source"`
}

// Product is the normalized unit returned to callers. Prices are in major units.
type Product struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand"`
	Price           float64  `json:"price"`
	SalePrice       float64  `json:"salePrice"`
	DiscountPercent int      `json:"discountPercent"`
	Rating          float64  `json:"rating"`
	Feedbacks       int      `json:"feedbacks"`
	Colors          []string `json:"colors"`
	Sizes           []string `json:"sizes"`
	ImageURLs       []string `json:"imageUrls"`
	ProductURL      string   `json:"productUrl"`
	Description     string   `json:"description"`
	Gender          string   `json:"gender,omitempty"`
	Available       bool     `json:"available"`
}
