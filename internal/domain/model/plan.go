package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain"
)

// PlanCode identifies a subscription tier.
type PlanCode string

const (
	PlanFree PlanCode = "FREE"
	PlanPlus PlanCode = "PLUS"
	PlanPro  PlanCode = "PRO"
)

// Rank orders tiers by strength; unknown codes rank below FREE.
func (p PlanCode) Rank() int {
	switch p {
	case PlanFree:
		return 0
	case PlanPlus:
		return 1
	case PlanPro:
		return 2
	default:
		return -1
	}
}

// IsPaid reports whether the tier carries monthly quotas.
func (p PlanCode) IsPaid() bool { return p == PlanPlus || p == PlanPro }

func ParsePlanCode(s string) (PlanCode, error) {
	code := PlanCode(strings.ToUpper(strings.TrimSpace(s)))
	if code.Rank() < 0 {
		return "", fmt.Errorf("%w: plan %q", domain.ErrInvalidArgument, s)
	}
	return code, nil
}

// Bundle is the six monthly quota quantities granted by a plan.
type Bundle struct {
	Chat  int `yaml:"chat"`
	Video int `yaml:"video"`
	Music int `yaml:"music"`
	Image int `yaml:"image"`
	Voice int `yaml:"voice"`
	Doc   int `yaml:"doc"`
}

func (b Bundle) IsZero() bool { return b == Bundle{} }

// Plan is an immutable catalog entry.
type Plan struct {
	Code   PlanCode
	Title  string
	Price  decimal.Decimal
	Bundle Bundle
}

// Catalog maps plan codes and VIP packs to prices and bundles. It is built
// once at startup and never mutated afterwards.
type Catalog struct {
	plans    map[PlanCode]Plan
	vipVideo map[int]decimal.Decimal
	vipMusic map[int]decimal.Decimal
}

func NewCatalog(plans []Plan, vipVideo, vipMusic map[int]decimal.Decimal) (*Catalog, error) {
	c := &Catalog{
		plans:    make(map[PlanCode]Plan, len(plans)),
		vipVideo: make(map[int]decimal.Decimal, len(vipVideo)),
		vipMusic: make(map[int]decimal.Decimal, len(vipMusic)),
	}
	for _, p := range plans {
		if p.Code.Rank() < 0 || p.Price.IsNegative() {
			return nil, fmt.Errorf("%w: plan %q", domain.ErrInvalidArgument, p.Code)
		}
		if p.Code == PlanFree && !p.Bundle.IsZero() {
			return nil, fmt.Errorf("%w: FREE plan cannot carry monthly quotas", domain.ErrInvalidArgument)
		}
		c.plans[p.Code] = p
	}
	for _, code := range []PlanCode{PlanFree, PlanPlus, PlanPro} {
		if _, ok := c.plans[code]; !ok {
			return nil, fmt.Errorf("%w: plan %s missing from catalog", domain.ErrInvalidArgument, code)
		}
	}
	for n, price := range vipVideo {
		if n < 1 || price.IsNegative() {
			return nil, fmt.Errorf("%w: vip video pack %d", domain.ErrInvalidArgument, n)
		}
		c.vipVideo[n] = price
	}
	for m, price := range vipMusic {
		if m < 1 || price.IsNegative() {
			return nil, fmt.Errorf("%w: vip music pack %d", domain.ErrInvalidArgument, m)
		}
		c.vipMusic[m] = price
	}
	return c, nil
}

// DefaultCatalog is the production price list.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		[]Plan{
			{Code: PlanFree, Title: "FREE", Price: decimal.Zero},
			{Code: PlanPlus, Title: "PLUS", Price: decimal.NewFromInt(12), Bundle: Bundle{Chat: 600, Video: 3, Music: 3, Image: 15, Voice: 5, Doc: 5}},
			{Code: PlanPro, Title: "PRO", Price: decimal.NewFromInt(28), Bundle: Bundle{Chat: 1200, Video: 6, Music: 3, Image: 30, Voice: 15, Doc: 15}},
		},
		map[int]decimal.Decimal{
			1: decimal.RequireFromString("19.99"),
			3: decimal.RequireFromString("49.99"),
			5: decimal.RequireFromString("79.99"),
		},
		map[int]decimal.Decimal{
			3: decimal.RequireFromString("29.99"),
			5: decimal.RequireFromString("49.99"),
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Plan(code PlanCode) (Plan, bool) {
	p, ok := c.plans[code]
	return p, ok
}

// Bundle returns the monthly bundle for code, zero for FREE or unknown codes.
func (c *Catalog) Bundle(code PlanCode) Bundle {
	return c.plans[code].Bundle
}

// Plans lists catalog entries by rank.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code.Rank() < out[j].Code.Rank() })
	return out
}

// VIPVideoPacks returns the offered pack sizes in ascending order.
func (c *Catalog) VIPVideoPacks() []int { return sortedKeys(c.vipVideo) }

// VIPMusicPacks returns the offered minute packs in ascending order.
func (c *Catalog) VIPMusicPacks() []int { return sortedKeys(c.vipMusic) }

// PriceOf resolves the price of a purchasable kind.
func (c *Catalog) PriceOf(k PurchaseKind) (decimal.Decimal, error) {
	switch k.Type {
	case PurchasePlan:
		p, ok := c.plans[k.Plan]
		if !ok || !k.Plan.IsPaid() {
			return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnknownPurchaseKind, k)
		}
		return p.Price, nil
	case PurchaseVIPVideo:
		if price, ok := c.vipVideo[k.Quantity]; ok {
			return price, nil
		}
	case PurchaseVIPMusic:
		if price, ok := c.vipMusic[k.Quantity]; ok {
			return price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrUnknownPurchaseKind, k)
}

func sortedKeys(m map[int]decimal.Decimal) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
