package domain

// ShippingPolicy charges a flat fee on orders whose goods subtotal is below
// the free-shipping threshold.
type ShippingPolicy struct {
	FreeShippingThreshold Money `json:"free_shipping_threshold"`
	Fee                   Money `json:"shipping_fee"`
}

func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{
		FreeShippingThreshold: NewMoney(50000),
		Fee:                   NewMoney(2500),
	}
}

// ShippingFee returns the flat fee when subtotal is strictly below the
// threshold, zero otherwise.
func (p ShippingPolicy) ShippingFee(subtotal Money) Money {
	if subtotal.LessThan(p.FreeShippingThreshold) {
		return p.Fee
	}
	return Money{}
}

// TotalPayment is subtotal plus shipping fee, rounded half-up.
func (p ShippingPolicy) TotalPayment(subtotal Money) Money {
	return subtotal.Add(p.ShippingFee(subtotal))
}
