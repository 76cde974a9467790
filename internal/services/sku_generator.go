package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const skuDateLayout = "060102"

// SequenceCounter hands out increasing sequence numbers per shop and day
type SequenceCounter interface {
	Next(ctx context.Context, shopID, dateCode string) (int64, error)
}

// SKUChecker reports whether a shop already uses a SKU
type SKUChecker interface {
	ListingSKUExists(ctx context.Context, shopID, sku string) (bool, error)
}

// SKUGenerator builds {ShopCode}{YYMMDD}{sequence} SKUs that a shop does not use yet
type SKUGenerator struct {
	counter     SequenceCounter
	checker     SKUChecker
	maxAttempts int
}

// NewSKUGenerator creates a generator giving up after maxAttempts taken candidates
func NewSKUGenerator(counter SequenceCounter, checker SKUChecker, maxAttempts int) *SKUGenerator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SKUGenerator{counter: counter, checker: checker, maxAttempts: maxAttempts}
}

// Generate returns an unused SKU for the shop. Every attempt draws a fresh, larger
// sequence number, so retried candidates strictly increase.
func (g *SKUGenerator) Generate(ctx context.Context, shopID, shopName string, at time.Time) (string, error) {
	dateCode := at.Format(skuDateLayout)
	prefix := ShopCode(shopName) + dateCode

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		seq, err := g.counter.Next(ctx, shopID, dateCode)
		if err != nil {
			return "", fmt.Errorf("failed to reserve SKU sequence: %w", err)
		}
		sku := fmt.Sprintf("%s%04d", prefix, seq)

		taken, err := g.checker.ListingSKUExists(ctx, shopID, sku)
		if err != nil {
			return "", fmt.Errorf("failed to check SKU %s: %w", sku, err)
		}
		if !taken {
			return sku, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrSKUExhausted, g.maxAttempts)
}

// ShopCode derives a three-letter code from a shop name: the initials of a
// multi-word name, or the first letters of a single word, padded with X.
func ShopCode(name string) string {
	words := strings.FieldsFunc(strings.ToUpper(name), func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	if len(words) == 0 {
		return "SHP"
	}

	var code string
	if len(words) == 1 {
		code = words[0]
	} else {
		for _, w := range words {
			code += w[:1]
		}
	}
	if len(code) > 3 {
		code = code[:3]
	}
	return code + strings.Repeat("X", 3-len(code))
}
