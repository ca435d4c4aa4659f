package client

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
)

// wireItem tolerates both line shapes the backend produces: lines carrying
// a server-side item id, and lines identified by product id only.
type wireItem struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"productId"`
	ProductSkuID *int64 `json:"productSkuId"`
	Name         string `json:"name"`
	Image        string `json:"image"`
	Price        int64  `json:"price"`
	Quantity     int    `json:"quantity"`
}

func (w wireItem) toLine() entity.CartLine {
	id := w.ID
	if id == 0 {
		id = w.ProductID
	}
	return entity.CartLine{
		ID:           id,
		Name:         w.Name,
		Image:        w.Image,
		Price:        w.Price,
		Quantity:     w.Quantity,
		ProductSkuID: w.ProductSkuID,
	}
}

func toLines(items []wireItem) []entity.CartLine {
	lines := make([]entity.CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.toLine())
	}
	return lines
}

// lineExtractor probes one possible nesting of the items array. It reports
// false when the shape it knows is absent, so the next extractor gets a
// chance.
type lineExtractor func(raw json.RawMessage) ([]entity.CartLine, bool)

// lineExtractors is ordered: the most specific envelope first, a bare
// array last. The backend is not consistent about which one it sends.
var lineExtractors = []lineExtractor{
	extractItemsField,
	extractDataItemsField,
	extractDataArray,
	extractRootArray,
}

func extractLines(raw json.RawMessage) ([]entity.CartLine, bool) {
	for _, extract := range lineExtractors {
		if lines, ok := extract(raw); ok {
			return lines, true
		}
	}
	return nil, false
}

// {"items": [...]}
func extractItemsField(raw json.RawMessage) ([]entity.CartLine, bool) {
	var envelope struct {
		Items *[]wireItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Items == nil {
		return nil, false
	}
	return toLines(*envelope.Items), true
}

// {"data": {"items": [...]}}
func extractDataItemsField(raw json.RawMessage) ([]entity.CartLine, bool) {
	var envelope struct {
		Data *struct {
			Items *[]wireItem `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Data == nil || envelope.Data.Items == nil {
		return nil, false
	}
	return toLines(*envelope.Data.Items), true
}

// {"data": [...]}
func extractDataArray(raw json.RawMessage) ([]entity.CartLine, bool) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}
	return extractRootArray(envelope.Data)
}

// [...]
func extractRootArray(raw json.RawMessage) ([]entity.CartLine, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var items []wireItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, false
	}
	return toLines(items), true
}

type messageEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func responseMessage(raw json.RawMessage) string {
	var envelope messageEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}

// isNoCartMessage recognizes the backend's explicit "no cart" answers.
func isNoCartMessage(raw json.RawMessage) bool {
	switch responseMessage(raw) {
	case "Cart not found", "No cart exists":
		return true
	}
	return false
}

// mentionsCart is the looser check applied to 404 bodies: any cart-related
// error string means the cart resource is simply absent.
func mentionsCart(raw json.RawMessage) bool {
	return strings.Contains(strings.ToLower(responseMessage(raw)), "cart")
}
