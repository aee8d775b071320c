// Package pricing turns raw catalog records into normalized products.
package pricing

import (
	"fmt"
	"math"

	"catalog-search/internal/catalog/bucket"
	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/logger"
)

// Options configures an Assembler.
type Options struct {
	ImageHost          string
	ProductURLTemplate string
	// MinorUnitDivisor converts upstream minor units to major units.
	MinorUnitDivisor float64
	ImageSlots       int
}

type Assembler struct {
	opts Options
	log  logger.Logger
}

func NewAssembler(opts Options, log logger.Logger) *Assembler {
	if opts.MinorUnitDivisor <= 0 {
		opts.MinorUnitDivisor = 100
	}
	if opts.ImageSlots <= 0 {
		opts.ImageSlots = 4
	}
	return &Assembler{opts: opts, log: log.Component("price_assembler")}
}

// SalePrice applies the fallback rule in minor units: a missing sale price,
// or one not below the list price, means no discount.
func SalePrice(price, sale int64) int64 {
	if sale == 0 || sale >= price {
		return price
	}
	return sale
}

// DiscountPercent is round((1 - sale/price) * 100) when there is a real
// discount, otherwise 0.
func DiscountPercent(price, sale int64) int {
	if price <= 0 || sale >= price {
		return 0
	}
	return int(math.Round((1 - float64(sale)/float64(price)) * 100))
}

// Assemble merges a search record, its optional detail overlay and its
// image bucket into a Product. It fails only for records that cannot
// describe a product at all.
func (a *Assembler) Assemble(raw models.RawSearchRecord, detail *models.DetailRecord, assignment models.BucketAssignment, gender string) (models.Product, error) {
	if raw.ID <= 0 {
		return models.Product{}, fmt.Errorf("record has no usable id: %d", raw.ID)
	}
	if raw.PriceUnits < 0 || raw.SalePriceUnits < 0 {
		return models.Product{}, fmt.Errorf("product %d has negative price %d/%d", raw.ID, raw.PriceUnits, raw.SalePriceUnits)
	}

	price := raw.PriceUnits
	sale := SalePrice(price, raw.SalePriceUnits)

	colors := raw.Colors
	sizes := raw.Sizes
	description := raw.Description
	if detail != nil {
		if len(detail.Colors) > 0 {
			colors = detail.Colors
		}
		if len(detail.Sizes) > 0 {
			sizes = detail.Sizes
		}
		if detail.Description != "" {
			description = detail.Description
		}
	}

	if raw.Pics.Len() < a.opts.ImageSlots {
		a.log.Debug("Photo count below image slots", map[string]interface{}{
			"product_id": raw.ID,
			"pics_kind":  raw.Pics.Kind,
			"pics":       raw.Pics.Len(),
			"slots":      a.opts.ImageSlots,
		})
	}

	return models.Product{
		ID:              raw.ID,
		Name:            raw.Name,
		Brand:           raw.Brand,
		Price:           a.major(price),
		SalePrice:       a.major(sale),
		DiscountPercent: DiscountPercent(price, sale),
		Rating:          raw.Rating,
		Feedbacks:       raw.Feedbacks,
		Colors:          nonNil(colors),
		Sizes:           sizeNames(sizes),
		ImageURLs:       a.imageURLs(assignment.Bucket, raw.ID),
		ProductURL:      fmt.Sprintf(a.opts.ProductURLTemplate, raw.ID),
		Description:     description,
		Gender:          gender,
		Available:       available(sizes),
	}, nil
}

func (a *Assembler) major(units int64) float64 {
	return float64(units) / a.opts.MinorUnitDivisor
}

func (a *Assembler) imageURLs(b int, id int64) []string {
	urls := make([]string, a.opts.ImageSlots)
	for i := range urls {
		urls[i] = bucket.ImageURL(a.opts.ImageHost, b, id, i+1)
	}
	return urls
}

func sizeNames(sizes []models.Size) []string {
	out := make([]string, 0, len(sizes))
	for _, s := range sizes {
		name := s.Name
		if name == "" {
			name = s.OrigName
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// available is true when any size is in stock. Records that carry no stock
// information at all are assumed available.
func available(sizes []models.Size) bool {
	known := false
	for _, s := range sizes {
		if len(s.StockQuantities) == 0 {
			continue
		}
		known = true
		if s.InStock() {
			return true
		}
	}
	return !known
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
