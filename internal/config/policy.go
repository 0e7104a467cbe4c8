package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"telegram-ai-entitlements/internal/domain/model"
)

// Policy merges the configured overrides onto the default entitlement rules.
func (c EntitlementConfig) Policy() (model.Policy, error) {
	p := model.DefaultPolicy()
	if c.FreeDailyLimit > 0 {
		p.FreeDailyLimit = c.FreeDailyLimit
	}
	if c.BlockDuration > 0 {
		p.BlockDuration = c.BlockDuration
	}
	if c.RefillInterval > 0 {
		p.RefillInterval = c.RefillInterval
	}
	if c.PlanDuration > 0 {
		p.PlanDuration = c.PlanDuration
	}
	if c.RefFreePlusDays > 0 {
		p.RefFreePlusDays = c.RefFreePlusDays
	}
	var err error
	if c.RefBonus != "" {
		if p.RefBonus, err = decimal.NewFromString(c.RefBonus); err != nil {
			return p, fmt.Errorf("entitlement.ref_bonus: %w", err)
		}
	}
	if c.RefFreePlusThreshold != "" {
		if p.RefFreePlusThreshold, err = decimal.NewFromString(c.RefFreePlusThreshold); err != nil {
			return p, fmt.Errorf("entitlement.ref_free_plus_threshold: %w", err)
		}
	}
	return p, p.Validate()
}

// Build merges the configured overrides onto the default catalog.
func (c CatalogConfig) Build() (*model.Catalog, error) {
	def := model.DefaultCatalog()
	plans := def.Plans()
	idx := make(map[model.PlanCode]int, len(plans))
	for i, p := range plans {
		idx[p.Code] = i
	}
	for key, pc := range c.Plans {
		code, err := model.ParsePlanCode(key)
		if err != nil {
			return nil, fmt.Errorf("entitlement.catalog.plans: %w", err)
		}
		p := plans[idx[code]]
		if pc.Price != "" {
			if p.Price, err = decimal.NewFromString(pc.Price); err != nil {
				return nil, fmt.Errorf("entitlement.catalog.plans.%s.price: %w", key, err)
			}
		}
		if pc.Bundle != nil {
			p.Bundle = *pc.Bundle
		}
		plans[idx[code]] = p
	}

	video, err := packPrices(c.VIPVideo, def, def.VIPVideoPacks(), model.VIPVideoPack, "vip_video")
	if err != nil {
		return nil, err
	}
	music, err := packPrices(c.VIPMusic, def, def.VIPMusicPacks(), model.VIPMusicPack, "vip_music")
	if err != nil {
		return nil, err
	}
	return model.NewCatalog(plans, video, music)
}

func packPrices(cfg map[int]string, def *model.Catalog, sizes []int, kind func(int) model.PurchaseKind, field string) (map[int]decimal.Decimal, error) {
	out := make(map[int]decimal.Decimal, len(sizes))
	if len(cfg) == 0 {
		for _, n := range sizes {
			out[n], _ = def.PriceOf(kind(n))
		}
		return out, nil
	}
	for n, s := range cfg {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("entitlement.catalog.%s.%d: %w", field, n, err)
		}
		out[n] = price
	}
	return out, nil
}

// PaidStatusSet returns the provider statuses treated as a confirmed payment.
func (c PaymentConfig) PaidStatusSet() map[string]struct{} {
	statuses := c.PaidStatuses
	if len(statuses) == 0 {
		statuses = model.DefaultPaidStatuses
	}
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return set
}
