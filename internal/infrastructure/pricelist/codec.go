// Package pricelist reads and writes partner price list documents.
package pricelist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/procurement/backend/internal/domain/catalog"
	"github.com/procurement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Supported document formats
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// DefaultMaxSize is the largest document accepted by default
const DefaultMaxSize int64 = 20 << 20

// Codec converts raw YAML or JSON documents to price lists and back
type Codec struct {
	maxSize int64
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithMaxSize rejects documents larger than n bytes
func WithMaxSize(n int64) CodecOption {
	return func(c *Codec) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewCodec creates a new Codec
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode parses raw as the given format. An empty format is detected from
// the first non-blank byte: '{' means JSON, anything else YAML.
func (c *Codec) Decode(raw []byte, format string) (*catalog.PriceList, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, catalog.NewDocumentError("", -1, "document", "is empty")
	}
	if int64(len(raw)) > c.maxSize {
		return nil, catalog.NewDocumentError("", -1, "document",
			fmt.Sprintf("is larger than %d bytes", c.maxSize))
	}

	format, err := resolveFormat(format, raw)
	if err != nil {
		return nil, err
	}

	var doc wireDocument
	switch format {
	case FormatJSON:
		err = json.Unmarshal(raw, &doc)
	default:
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, catalog.NewDocumentError("", -1, "document", fmt.Sprintf("malformed %s: %v", format, err))
	}
	return doc.toPriceList(), nil
}

// Encode renders doc in the given format, YAML when format is empty
func (c *Codec) Encode(doc *catalog.PriceList, format string) ([]byte, error) {
	if format == "" {
		format = FormatYAML
	}
	format, err := resolveFormat(format, nil)
	if err != nil {
		return nil, err
	}

	wire := fromPriceList(doc)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(wire, "", "  ")
	default:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(wire); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// FormatFromContentType maps a Content-Type header to a document format,
// returning "" when it names neither
func FormatFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return FormatJSON
	case strings.Contains(mediaType, "yaml"):
		return FormatYAML
	}
	return ""
}

// FormatFromPath maps a file extension to a document format
func FormatFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	}
	return ""
}

func resolveFormat(format string, raw []byte) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case "":
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
			return FormatJSON, nil
		}
		return FormatYAML, nil
	}
	return "", shared.NewValidationError("UNSUPPORTED_FORMAT",
		fmt.Sprintf("Price list format %q is not supported, use yaml or json", format))
}

type wireDocument struct {
	Shop       string         `json:"shop" yaml:"shop"`
	Categories []wireCategory `json:"categories" yaml:"categories"`
	Goods      []wireItem     `json:"goods" yaml:"goods"`
}

type wireCategory struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type wireItem struct {
	ID         int64             `json:"id" yaml:"id"`
	Category   int64             `json:"category" yaml:"category"`
	Model      string            `json:"model" yaml:"model"`
	Name       string            `json:"name" yaml:"name"`
	Price      *amount           `json:"price" yaml:"price"`
	PriceRRC   *amount           `json:"price_rrc" yaml:"price_rrc"`
	Quantity   *int              `json:"quantity" yaml:"quantity"`
	Parameters map[string]scalar `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func (d *wireDocument) toPriceList() *catalog.PriceList {
	out := &catalog.PriceList{
		Shop:       strings.TrimSpace(d.Shop),
		Categories: make([]catalog.PriceListCategory, len(d.Categories)),
		Goods:      make([]catalog.PriceListItem, len(d.Goods)),
	}
	for i, c := range d.Categories {
		out.Categories[i] = catalog.PriceListCategory{ID: c.ID, Name: strings.TrimSpace(c.Name)}
	}
	for i, g := range d.Goods {
		item := catalog.PriceListItem{
			ID:       g.ID,
			Category: g.Category,
			Model:    strings.TrimSpace(g.Model),
			Name:     strings.TrimSpace(g.Name),
			Price:    g.Price.value(),
			PriceRRC: g.PriceRRC.value(),
			Quantity: g.Quantity,
		}
		if len(g.Parameters) > 0 {
			item.Parameters = make(map[string]string, len(g.Parameters))
			for name, value := range g.Parameters {
				item.Parameters[name] = string(value)
			}
		}
		out.Goods[i] = item
	}
	return out
}

func fromPriceList(doc *catalog.PriceList) *wireDocument {
	out := &wireDocument{
		Shop:       doc.Shop,
		Categories: make([]wireCategory, len(doc.Categories)),
		Goods:      make([]wireItem, len(doc.Goods)),
	}
	for i, c := range doc.Categories {
		out.Categories[i] = wireCategory{ID: c.ID, Name: c.Name}
	}
	for i, g := range doc.Goods {
		item := wireItem{
			ID:       g.ID,
			Category: g.Category,
			Model:    g.Model,
			Name:     g.Name,
			Price:    toAmount(g.Price),
			PriceRRC: toAmount(g.PriceRRC),
			Quantity: g.Quantity,
		}
		if len(g.Parameters) > 0 {
			item.Parameters = make(map[string]scalar, len(g.Parameters))
			for name, value := range g.Parameters {
				item.Parameters[name] = scalar(value)
			}
		}
		out.Goods[i] = item
	}
	return out
}

// amount is a price written as a bare number or a numeric string
type amount decimal.Decimal

func toAmount(d *decimal.Decimal) *amount {
	if d == nil {
		return nil
	}
	a := amount(*d)
	return &a
}

func (a *amount) value() *decimal.Decimal {
	if a == nil {
		return nil
	}
	d := decimal.Decimal(*a)
	return &d
}

func (a *amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*a = amount(d)
	return nil
}

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).String()), nil
}

func (a *amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: price must be a number", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: price %q is not a number", node.Line, node.Value)
	}
	*a = amount(d)
	return nil
}

func (a amount) MarshalYAML() (any, error) {
	d := decimal.Decimal(a)
	tag := "!!float"
	if d.Equal(d.Truncate(0)) {
		tag = "!!int"
		d = d.Truncate(0)
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: d.String()}, nil
}

// scalar is a parameter value. Partners write numbers and booleans as well
// as strings; all of them are kept as text.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch trimmed[0] {
	case '"':
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return err
		}
		*s = scalar(str)
	case '{', '[':
		return fmt.Errorf("parameter value must be a string, number or boolean")
	default:
		if string(trimmed) == "null" {
			*s = ""
			return nil
		}
		*s = scalar(trimmed)
	}
	return nil
}

func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: parameter value must be a string, number or boolean", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = scalar(node.Value)
	return nil
}

func (s scalar) MarshalYAML() (any, error) {
	return string(s), nil
}

func (s scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}
