package news

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bargetrader/internal/domain"
)

// Item is a catalogue entry as written in YAML.
type Item struct {
	Content     string `yaml:"content"`
	Impact      string `yaml:"impact_type"`
	ImpactValue string `yaml:"impact_value"`
}

// DefaultCatalogue is used when no catalogue is configured.
func DefaultCatalogue() []domain.News {
	return []domain.News{
		{Content: "Oil terminal strike announced", Impact: domain.Bearish, ImpactValue: decimal.RequireFromString("5.00")},
		{Content: "New oil reserves discovered", Impact: domain.Bullish, ImpactValue: decimal.RequireFromString("3.50")},
	}
}

// Parse validates catalogue items and converts them to news.
func Parse(items []Item) ([]domain.News, error) {
	out := make([]domain.News, 0, len(items))
	for i, it := range items {
		content := strings.TrimSpace(it.Content)
		if content == "" {
			return nil, fmt.Errorf("news item %d: content is required", i)
		}

		impact := domain.Impact(strings.ToLower(strings.TrimSpace(it.Impact)))
		switch impact {
		case domain.Bullish, domain.Bearish, domain.Neutral:
		case "":
			impact = domain.Neutral
		default:
			return nil, fmt.Errorf("news item %d: impact_type must be bullish, bearish or neutral, got %q", i, it.Impact)
		}

		value := decimal.Zero
		if raw := strings.TrimSpace(it.ImpactValue); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("news item %d: impact_value: %w", i, err)
			}
			if v.IsNegative() {
				return nil, fmt.Errorf("news item %d: impact_value must not be negative", i)
			}
			value = v.Round(domain.PriceDecimalPlaces)
		}

		out = append(out, domain.News{Content: content, Impact: impact, ImpactValue: value})
	}
	return out, nil
}

// LoadFile reads a YAML list of items.
func LoadFile(path string) ([]domain.News, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read news catalogue: %w", err)
	}
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse news catalogue: %w", err)
	}
	return Parse(items)
}
