package domain

import "time"

// PricingUnit determines how a rule's price applies to measured usage.
type PricingUnit string

const (
	UnitSecond PricingUnit = "second"
	UnitMinute PricingUnit = "minute"
	UnitToken  PricingUnit = "token"
)

// ResourceType names a billable resource class.
type ResourceType string

const (
	ResourceDownload ResourceType = "media_download"
	ResourceASR      ResourceType = "asr"
	ResourceLLM      ResourceType = "llm"
	ResourceRender   ResourceType = "render"
)

// PricingRule is admin-managed reference data resolved by specificity
// fallback: exact model match, then provider default, then global default.
// Token-priced rules carry micro-point input/output rates; duration-priced
// rules carry a whole-point price per unit.
type PricingRule struct {
	ID                 string
	ResourceType       ResourceType
	ProviderID         string // empty = provider default / global
	ModelID            string // empty = not model-specific
	Unit               PricingUnit
	PricePerUnit       int64 // points per unit, duration-priced rules
	InputPricePerUnit  int64 // micro-points per input token
	OutputPricePerUnit int64 // micro-points per output token
	MinCharge          int64
	UpdatedAt          time.Time
}
