package domain

import "time"

// OrderLine is a snapshot of the product as it was when the order was placed.
type OrderLine struct {
	ProductNumber int64  `json:"product_number" db:"product_number"`
	ProductName   string `json:"product_name" db:"product_name"`
	UnitPrice     Money  `json:"unit_price" db:"unit_price"`
	Quantity      int    `json:"quantity" db:"quantity"`
}

func NewOrderLine(inv Inventory, quantity int) OrderLine {
	return OrderLine{
		ProductNumber: inv.ProductNumber,
		ProductName:   inv.Name,
		UnitPrice:     inv.Price,
		Quantity:      quantity,
	}
}

func (l OrderLine) LineTotal() Money {
	return l.UnitPrice.MulQuantity(l.Quantity)
}

type Order struct {
	OrderNumber   string      `json:"order_number"`
	OrderedAt     time.Time   `json:"ordered_at"`
	Lines         []OrderLine `json:"items"`
	Subtotal      Money       `json:"subtotal"`
	ShippingFee   Money       `json:"shipping_fee"`
	PaymentAmount Money       `json:"payment_amount"`
}

// NewOrder prices lines under policy. The returned order is not modified
// after it has been persisted.
func NewOrder(orderNumber string, orderedAt time.Time, lines []OrderLine, policy ShippingPolicy) Order {
	subtotal := Money{}
	for _, line := range lines {
		subtotal = subtotal.Add(line.LineTotal())
	}

	snapshot := make([]OrderLine, len(lines))
	copy(snapshot, lines)

	return Order{
		OrderNumber:   orderNumber,
		OrderedAt:     orderedAt,
		Lines:         snapshot,
		Subtotal:      subtotal,
		ShippingFee:   policy.ShippingFee(subtotal),
		PaymentAmount: policy.TotalPayment(subtotal),
	}
}

func (o Order) TotalQuantity() int {
	total := 0
	for _, line := range o.Lines {
		total += line.Quantity
	}
	return total
}
