package upstream

import (
	"bytes"
	"encoding/json"

	"catalog-search/internal/catalog/models"
)

// Decode paths, also used as metric labels.
const (
	PathJSON        = "json"
	PathText        = "text"
	PathMissingData = "missing-data"
	PathEmpty       = "empty"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoded is the result of decoding one upstream body.
type Decoded struct {
	Products []models.RawSearchRecord
	Path     string
	// Skipped counts entries in data.products that were not decodable records.
	Skipped int
}

type envelope struct {
	Data *struct {
		Products []json.RawMessage `json:"products"`
	} `json:"data"`
}

// DecodeProducts extracts data.products from a body that may be JSON, JSON
// served as text, or garbage. It never fails: anything it cannot read
// becomes an empty product list.
func DecodeProducts(body []byte) Decoded {
	if env, ok := decodeEnvelope(body); ok {
		return fromEnvelope(env, PathJSON)
	}
	if env, ok := decodeText(body); ok {
		return fromEnvelope(env, PathText)
	}
	return Decoded{Path: PathEmpty}
}

func decodeEnvelope(body []byte) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	return env, true
}

func decodeText(body []byte) (envelope, bool) {
	text := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))
	if len(text) == 0 {
		return envelope{}, false
	}

	// JSON document wrapped in a JSON string
	if text[0] == '"' {
		var inner string
		if err := json.Unmarshal(text, &inner); err == nil {
			text = bytes.TrimSpace([]byte(inner))
			if env, ok := decodeEnvelope(text); ok {
				return env, true
			}
		}
	}

	start := bytes.IndexByte(text, '{')
	end := bytes.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return envelope{}, false
	}
	return decodeEnvelope(text[start : end+1])
}

func fromEnvelope(env envelope, path string) Decoded {
	if env.Data == nil {
		return Decoded{Path: PathMissingData}
	}

	out := Decoded{Path: path, Products: make([]models.RawSearchRecord, 0, len(env.Data.Products))}
	for _, raw := range env.Data.Products {
		var rec models.RawSearchRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ID == 0 {
			out.Skipped++
			continue
		}
		out.Products = append(out.Products, rec)
	}
	return out
}
