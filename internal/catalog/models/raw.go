package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PicsKind tags which shape the upstream used for the pics field.
type PicsKind int

const (
	PicsAbsent PicsKind = iota
	PicsCount
	PicsList
)

// Pics is the upstream photo field, which arrives either as a count or as a
// list of photo identifiers.
type Pics struct {
	Kind  PicsKind
	Count int
	Items []string
}

// Len is the number of photos the upstream claims to have.
func (p Pics) Len() int {
	switch p.Kind {
	case PicsCount:
		return p.Count
	case PicsList:
		return len(p.Items)
	default:
		return 0
	}
}

func (p *Pics) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = Pics{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		p.Kind = PicsList
		p.Items = make([]string, 0, len(items))
		for _, item := range items {
			p.Items = append(p.Items, rawString(item))
		}
		return nil
	default:
		n, ok := rawInt(data)
		if !ok {
			return fmt.Errorf("pics: unsupported value %s", string(data))
		}
		p.Kind = PicsCount
		p.Count = int(n)
		return nil
	}
}

func (p Pics) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PicsCount:
		return json.Marshal(p.Count)
	case PicsList:
		return json.Marshal(p.Items)
	default:
		return []byte("null"), nil
	}
}

// RawSearchRecord is one untrusted catalog item. Field names vary between
// upstream endpoints and releases, so decoding accepts every known alias and
// tolerates wrong scalar types instead of failing the record.
type RawSearchRecord struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Brand          string   `json:"brand"`
	PriceUnits     int64    `json:"priceU"`
	SalePriceUnits int64    `json:"salePriceU"`
	Rating         float64  `json:"rating"`
	Feedbacks      int      `json:"feedbacks"`
	Pics           Pics     `json:"pics"`
	Colors         []string `json:"colors,omitempty"`
	Sizes          []Size   `json:"sizes,omitempty"`
	Description    string   `json:"description,omitempty"`
}

var (
	idKeys          = []string{"id", "nmId", "nm_id"}
	nameKeys        = []string{"name", "title", "imt_name"}
	brandKeys       = []string{"brand", "brandName", "brand_name"}
	priceKeys       = []string{"priceU", "price", "price_u"}
	salePriceKeys   = []string{"salePriceU", "salePrice", "sale_price_u", "sale_price"}
	ratingKeys      = []string{"reviewRating", "rating", "nmReviewRating"}
	feedbackKeys    = []string{"feedbacks", "nmFeedbacks", "feedbackCount"}
	descriptionKeys = []string{"description", "descriptionText"}
)

func (r *RawSearchRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = RawSearchRecord{}

	if raw, ok := first(fields, idKeys); ok {
		id, ok := rawInt(raw)
		if !ok {
			return fmt.Errorf("record id: unsupported value %s", string(raw))
		}
		r.ID = id
	}
	if raw, ok := first(fields, nameKeys); ok {
		r.Name = rawString(raw)
	}
	if raw, ok := first(fields, brandKeys); ok {
		r.Brand = rawString(raw)
	}
	if raw, ok := first(fields, priceKeys); ok {
		r.PriceUnits, _ = rawInt(raw)
	}
	if raw, ok := first(fields, salePriceKeys); ok {
		r.SalePriceUnits, _ = rawInt(raw)
	}
	if raw, ok := first(fields, ratingKeys); ok {
		r.Rating, _ = rawFloat(raw)
	}
	if raw, ok := first(fields, feedbackKeys); ok {
		n, _ := rawInt(raw)
		r.Feedbacks = int(n)
	}
	if raw, ok := fields["pics"]; ok {
		// A malformed pics value is a shape anomaly, not a bad record.
		_ = r.Pics.UnmarshalJSON(raw)
	}
	if raw, ok := fields["colors"]; ok {
		r.Colors = decodeColors(raw)
	}
	if raw, ok := fields["sizes"]; ok {
		r.Sizes = decodeSizes(raw)
	}
	if raw, ok := first(fields, descriptionKeys); ok {
		r.Description = rawString(raw)
	}
	return nil
}

// Detail extracts the enrichment overlay carried by a detail-endpoint record.
func (r RawSearchRecord) Detail() DetailRecord {
	return DetailRecord{
		ID:          r.ID,
		Colors:      r.Colors,
		Sizes:       r.Sizes,
		Description: r.Description,
	}
}

func first(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := fields[k]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return raw, true
		}
	}
	return nil, false
}

// colors arrive as ["red"] or [{"name":"red","id":1}]
func decodeColors(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Name != "" {
			out = append(out, obj.Name)
			continue
		}
		if s := rawString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sizes carry stock either as stockQuantities [3,0] or stocks [{"qty":3}]
func decodeSizes(raw json.RawMessage) []Size {
	var items []struct {
		Name            json.RawMessage   `json:"name"`
		OrigName        json.RawMessage   `json:"origName"`
		StockQuantities []json.RawMessage `json:"stockQuantities"`
		Stocks          []struct {
			Qty json.RawMessage `json:"qty"`
		} `json:"stocks"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]Size, 0, len(items))
	for _, item := range items {
		s := Size{Name: rawString(item.Name), OrigName: rawString(item.OrigName)}
		for _, q := range item.StockQuantities {
			n, _ := rawInt(q)
			s.StockQuantities = append(s.StockQuantities, int(n))
		}
		for _, st := range item.Stocks {
			n, _ := rawInt(st.Qty)
			s.StockQuantities = append(s.StockQuantities, int(n))
		}
		if s.Name == "" {
			s.Name = s.OrigName
		}
		out = append(out, s)
	}
	return out
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

func rawInt(raw json.RawMessage) (int64, bool) {
	f, ok := rawFloat(raw)
	if !ok {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		f, err := n.Float64()
		return f, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}
