package domain

import (
	"github.com/shopspring/decimal"
)

// PackageKind classifies what a purchase grants.
type PackageKind string

const (
	KindOneTime        PackageKind = "one_time"
	KindSubscription   PackageKind = "subscription"
	KindDiscussionPack PackageKind = "discussion_pack"
)

// FreeTierAllowance is the base discussion allowance when no one-time
// package governs the user.
const FreeTierAllowance = 5

// CatalogCurrency is the currency all catalog prices are quoted in.
const CatalogCurrency = "RUB"

// Package is one purchasable item.
type Package struct {
	Tag  string      `json:"tag"`
	Kind PackageKind `json:"kind"`
	// Plan names the subscription plan; empty for other kinds.
	Plan string `json:"plan,omitempty"`
	// Solutions are problem credits granted per purchase or per month.
	Solutions int `json:"solutions"`
	// DiscussionBase is the base discussion allowance of a one-time
	// package or the discussion limit of a subscription plan.
	DiscussionBase int `json:"discussion_base"`
	// Discussions are credits added by a discussion pack.
	Discussions int             `json:"discussions"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

var catalogOrder = []Package{
	{Tag: "starter", Kind: KindOneTime, Solutions: 5, DiscussionBase: 10, Price: decimal.NewFromInt(299)},
	{Tag: "medium", Kind: KindOneTime, Solutions: 15, DiscussionBase: 15, Price: decimal.NewFromInt(699)},
	{Tag: "large", Kind: KindOneTime, Solutions: 30, DiscussionBase: 25, Price: decimal.NewFromInt(1199)},
	{Tag: "subscription_standard", Kind: KindSubscription, Plan: "standard", Solutions: 15, DiscussionBase: 15, Price: decimal.NewFromInt(599)},
	{Tag: "subscription_premium", Kind: KindSubscription, Plan: "premium", Solutions: 30, DiscussionBase: 25, Price: decimal.NewFromInt(999)},
	{Tag: "discussion_5", Kind: KindDiscussionPack, Discussions: 5, Price: decimal.NewFromInt(149)},
	{Tag: "discussion_15", Kind: KindDiscussionPack, Discussions: 15, Price: decimal.NewFromInt(349)},
}

var catalog = func() map[string]Package {
	m := make(map[string]Package, len(catalogOrder))
	for i := range catalogOrder {
		catalogOrder[i].Currency = CatalogCurrency
		m[catalogOrder[i].Tag] = catalogOrder[i]
	}
	return m
}()

// LookupPackage returns the catalog entry for tag.
func LookupPackage(tag string) (Package, error) {
	pkg, ok := catalog[tag]
	if !ok {
		return Package{}, ErrUnknownPackage
	}
	return pkg, nil
}

// PackageForPlan returns the subscription package of a plan name.
func PackageForPlan(plan string) (Package, error) {
	for _, pkg := range catalogOrder {
		if pkg.Kind == KindSubscription && pkg.Plan == plan {
			return pkg, nil
		}
	}
	return Package{}, ErrUnknownPackage
}

// Packages returns the catalog in display order. The slice is a copy.
func Packages() []Package {
	out := make([]Package, len(catalogOrder))
	copy(out, catalogOrder)
	return out
}

// BaseAllowance maps the last purchased package to its base discussion
// allowance. Anything other than a one-time package gets the free tier.
func BaseAllowance(tag string) int {
	pkg, ok := catalog[tag]
	if !ok || pkg.Kind != KindOneTime {
		return FreeTierAllowance
	}
	return pkg.DiscussionBase
}
