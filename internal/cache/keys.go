package cache

import "strings"

const prefix = "smilequote:"

// KeyCatalogItem returns the cache key for a single catalog entry.
func KeyCatalogItem(kind, id string) string {
	return prefix + "catalog:" + kind + ":" + id
}

// KeyDiscountRule returns the cache key for a normalized promo code or offer id.
func KeyDiscountRule(code string) string {
	return prefix + "discount:" + strings.ToUpper(strings.TrimSpace(code))
}
