package domain

// AttributeProfile describes one item to be scored or rewarded.
// Numeric and boolean attributes are referenced by name from rule set
// expressions; Condition carries a pre-assigned qualitative label when the
// engine is used for classification rather than scoring.
type AttributeProfile struct {
	// ID is an opaque identifier, unique per item instance.
	ID string `json:"id"`

	// Numeric attributes, e.g. recycledContent, waterUsage, co2Grams.
	Numeric map[string]float64 `json:"numericAttributes,omitempty"`

	// Boolean attributes, e.g. plasticFree, organic, chemicalFree.
	Boolean map[string]bool `json:"booleanAttributes,omitempty"`

	// Condition is the optional categorical attribute (e.g. a returned-item
	// condition grade such as "Minor Wear").
	Condition string `json:"categoricalAttribute,omitempty"`
}

// HasAttribute reports whether the named attribute is present on the
// profile, in either the numeric or the boolean map.
func (p *AttributeProfile) HasAttribute(name string) bool {
	if _, ok := p.Numeric[name]; ok {
		return true
	}
	_, ok := p.Boolean[name]
	return ok
}

// Activation returns the CEL activation variables for this profile.
// Maps are never nil so expressions can index them safely.
func (p *AttributeProfile) Activation() map[string]any {
	numeric := p.Numeric
	if numeric == nil {
		numeric = map[string]float64{}
	}
	boolean := p.Boolean
	if boolean == nil {
		boolean = map[string]bool{}
	}
	return map[string]any{
		"numeric":   numeric,
		"boolean":   boolean,
		"condition": p.Condition,
	}
}
