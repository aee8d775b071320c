package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-search/internal/catalog/models"
	"catalog-search/internal/common/logger"
)

func newAssembler(t *testing.T) *Assembler {
	return NewAssembler(Options{
		ImageHost:          "https://basket-%02d.wbbasket.ru",
		ProductURLTemplate: "https://www.wildberries.ru/catalog/%d/detail.aspx",
		MinorUnitDivisor:   100,
		ImageSlots:         4,
	}, logger.NewTestLogger(t))
}

var assignment = models.BucketAssignment{ProductID: 184019230, Bucket: 12, Source: models.BucketSourceProbe}

func TestAssemble_PriceRules(t *testing.T) {
	tests := []struct {
		name      string
		price     int64
		sale      int64
		wantPrice float64
		wantSale  float64
		discount  int
	}{
		{name: "discounted", price: 899000, sale: 449900, wantPrice: 8990, wantSale: 4499, discount: 50},
		{name: "a third off", price: 100000, sale: 66700, wantPrice: 1000, wantSale: 667, discount: 33},
		{name: "missing sale price", price: 250000, sale: 0, wantPrice: 2500, wantSale: 2500, discount: 0},
		{name: "sale above price", price: 100000, sale: 120000, wantPrice: 1000, wantSale: 1000, discount: 0},
		{name: "sale equals price", price: 100000, sale: 100000, wantPrice: 1000, wantSale: 1000, discount: 0},
		{name: "free", price: 0, sale: 0, wantPrice: 0, wantSale: 0, discount: 0},
		{name: "sale without price", price: 0, sale: 5000, wantPrice: 0, wantSale: 0, discount: 0},
	}

	a := newAssembler(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := a.Assemble(models.RawSearchRecord{ID: 184019230, PriceUnits: tt.price, SalePriceUnits: tt.sale}, nil, assignment, "")
			require.NoError(t, err)

			assert.InDelta(t, tt.wantPrice, p.Price, 1e-9)
			assert.InDelta(t, tt.wantSale, p.SalePrice, 1e-9)
			assert.Equal(t, tt.discount, p.DiscountPercent)
			assert.LessOrEqual(t, p.SalePrice, p.Price)
		})
	}
}

func TestAssemble_ImagesAndURL(t *testing.T) {
	for _, pics := range []models.Pics{
		{Kind: models.PicsCount, Count: 1},
		{Kind: models.PicsList, Items: []string{"1", "2", "3", "4", "5", "6"}},
		{},
	} {
		p, err := newAssembler(t).Assemble(models.RawSearchRecord{ID: 184019230, Pics: pics}, nil, assignment, "")
		require.NoError(t, err)

		assert.Equal(t, []string{
			"https://basket-12.wbbasket.ru/vol1840/part184019/184019230/images/c516x688/1.webp",
			"https://basket-12.wbbasket.ru/vol1840/part184019/184019230/images/c516x688/2.webp",
			"https://basket-12.wbbasket.ru/vol1840/part184019/184019230/images/c516x688/3.webp",
			"https://basket-12.wbbasket.ru/vol1840/part184019/184019230/images/c516x688/4.webp",
		}, p.ImageURLs)
		assert.Equal(t, "https://www.wildberries.ru/catalog/184019230/detail.aspx", p.ProductURL)
	}
}

func TestAssemble_DetailOverlay(t *testing.T) {
	raw := models.RawSearchRecord{
		ID:          5,
		Name:        "Пиджак",
		Brand:       "Zarina",
		Colors:      []string{"серый"},
		Sizes:       []models.Size{{Name: "46"}},
		Description: "short",
	}

	t.Run("detail replaces non-empty fields", func(t *testing.T) {
		detail := &models.DetailRecord{
			ID:     5,
			Colors: []string{"графит", "серый"},
			Sizes:  []models.Size{{Name: "48", StockQuantities: []int{0, 3}}, {OrigName: "50", StockQuantities: []int{0}}},
		}
		p, err := newAssembler(t).Assemble(raw, detail, assignment, "male")
		require.NoError(t, err)

		assert.Equal(t, []string{"графит", "серый"}, p.Colors)
		assert.Equal(t, []string{"48", "50"}, p.Sizes)
		assert.Equal(t, "short", p.Description)
		assert.Equal(t, "male", p.Gender)
		assert.True(t, p.Available)
	})

	t.Run("no detail keeps raw fields", func(t *testing.T) {
		p, err := newAssembler(t).Assemble(raw, nil, assignment, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"серый"}, p.Colors)
		assert.Equal(t, []string{"46"}, p.Sizes)
		assert.Equal(t, "Zarina", p.Brand)
	})
}

func TestAssemble_Availability(t *testing.T) {
	tests := []struct {
		name  string
		sizes []models.Size
		want  bool
	}{
		{name: "no sizes", want: true},
		{name: "no stock info", sizes: []models.Size{{Name: "S"}}, want: true},
		{name: "all out of stock", sizes: []models.Size{{Name: "S", StockQuantities: []int{0}}, {Name: "M", StockQuantities: []int{0, 0}}}, want: false},
		{name: "one in stock", sizes: []models.Size{{Name: "S", StockQuantities: []int{0}}, {Name: "M", StockQuantities: []int{1}}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newAssembler(t).Assemble(models.RawSearchRecord{ID: 1, Sizes: tt.sizes}, nil, assignment, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Available)
			assert.NotNil(t, p.Colors)
			assert.NotNil(t, p.Sizes)
		})
	}
}

func TestAssemble_RejectsUnusableRecords(t *testing.T) {
	a := newAssembler(t)

	_, err := a.Assemble(models.RawSearchRecord{ID: 0}, nil, assignment, "")
	assert.Error(t, err)

	_, err = a.Assemble(models.RawSearchRecord{ID: 3, PriceUnits: -100}, nil, assignment, "")
	assert.Error(t, err)
}
