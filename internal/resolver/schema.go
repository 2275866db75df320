package resolver

// DefaultProductSchema is the built-in configuration form for emitting an
// Add modification: balance-sheet side, product family, amount and maturity,
// rate details, and parallel pay/receive legs when the family is a swap.
//
// Side changes clear the family, amortization, and variant; family changes
// clear amortization and variant. Daycount is derived from the family and
// never edited directly.
func DefaultProductSchema() []Field {
	return []Field{
		{
			ID: "side", Label: "Side", Required: true,
			ClearOnChange: []string{"product_family"},
		},
		{
			ID: "product_family", Label: "Product family", Required: true,
			ClearOnChange: []string{"amortization", "variant"},
		},
		{
			ID: "daycount", Label: "Daycount basis",
			DerivedFrom: &Derivation{
				FieldID: "product_family",
				Map: map[string]string{
					"loan":         "ACT/360",
					"mortgage":     "ACT/360",
					"bond":         "30/360",
					"term-deposit": "30/360",
					"swap":         "ACT/360",
				},
			},
		},
		{ID: "notional", Label: "Notional", Required: true},
		{ID: "maturity_years", Label: "Maturity (years)", Required: true},
		{
			ID: "amortization", Label: "Amortization", Required: true,
			ClearOnChange: []string{"variant"},
		},
		{ID: "variant", Label: "Variant", Required: true},
		{
			ID: "rate", Label: "Rate", Required: true,
			ShowWhen: &Condition{FieldID: "product_family", Equals: "loan"},
		},
		{
			ID: "pay_rate_type", Label: "Pay leg rate type", Required: true,
			Group:    "pay-leg",
			ShowWhen: &Condition{FieldID: "product_family", Equals: "swap"},
		},
		{
			ID: "pay_rate", Label: "Pay leg rate", Required: true,
			Group:    "pay-leg",
			ShowWhen: &Condition{FieldID: "product_family", Equals: "swap"},
		},
		{
			ID: "receive_rate_type", Label: "Receive leg rate type", Required: true,
			Group:    "receive-leg",
			ShowWhen: &Condition{FieldID: "product_family", Equals: "swap"},
		},
		{
			ID: "receive_rate", Label: "Receive leg rate", Required: true,
			Group:    "receive-leg",
			ShowWhen: &Condition{FieldID: "product_family", Equals: "swap"},
		},
		{ID: "label", Label: "Label"},
	}
}
