package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

const defaultOrderNumberAttempts = 10

// ErrOrderNumberExhausted is returned when every random suffix attempt collided.
var ErrOrderNumberExhausted = errors.New("order number: generation attempts exhausted")

// asciiFold strips combining marks so accented product names still yield A-Z
// initials (Thé -> THE).
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// OrderNumberGeneratorDeps bundles collaborators for the generator.
type OrderNumberGeneratorDeps struct {
	Orders      repositories.OrderRepository
	MaxAttempts int
	RandInt     func(n int) int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderNumberGenerator struct {
	orders      repositories.OrderRepository
	maxAttempts int
	randInt     func(int) int
	logger      func(context.Context, string, map[string]any)
}

// NewOrderNumberGenerator wires dependencies into a concrete generator.
func NewOrderNumberGenerator(deps OrderNumberGeneratorDeps) (OrderNumberGenerator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order number generator: order repository is required")
	}

	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}

	randInt := deps.RandInt
	if randInt == nil {
		randInt = rand.IntN
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderNumberGenerator{
		orders:      deps.Orders,
		maxAttempts: attempts,
		randInt:     randInt,
		logger:      logger,
	}, nil
}

// Generate allocates a number shaped DDMMYYYY-XX-RRRLL. The date and initials
// are deterministic; only the random suffix is retried on collision, and the
// number of retries is bounded.
func (g *orderNumberGenerator) Generate(ctx context.Context, items []domain.OrderItem, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s", now.UTC().Format("02012006"), orderNumberInitials(items))

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s-%s", prefix, g.randomSuffix())

		exists, err := g.orders.ExistsByOrderNumber(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("order number: uniqueness probe: %w", err)
		}
		if !exists {
			return candidate, nil
		}

		g.logger(ctx, "order.number.collision", map[string]any{
			"candidate": candidate,
			"attempt":   attempt,
		})
	}

	return "", fmt.Errorf("%w: %d attempts for prefix %s", ErrOrderNumberExhausted, g.maxAttempts, prefix)
}

// randomSuffix yields three digits followed by two uppercase letters.
func (g *orderNumberGenerator) randomSuffix() string {
	buf := make([]byte, 5)
	for i := 0; i < 3; i++ {
		buf[i] = byte('0' + g.randInt(10))
	}
	for i := 3; i < 5; i++ {
		buf[i] = byte('A' + g.randInt(26))
	}
	return string(buf)
}

// orderNumberInitials derives the two-letter segment from the first two item
// names. Missing items and characters outside A-Z map to 'X'.
func orderNumberInitials(items []domain.OrderItem) string {
	initials := [2]byte{'X', 'X'}
	for i := 0; i < len(initials) && i < len(items); i++ {
		initials[i] = firstInitial(items[i].Name)
	}
	return string(initials[:])
}

func firstInitial(name string) byte {
	name = strings.TrimSpace(name)
	if name == "" {
		return 'X'
	}
	folded, _, err := transform.String(asciiFold, name)
	if err != nil || folded == "" {
		folded = name
	}
	r := unicode.ToUpper([]rune(folded)[0])
	if r < 'A' || r > 'Z' {
		return 'X'
	}
	return byte(r)
}
