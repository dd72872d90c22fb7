package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOrder_Totals(t *testing.T) {
	lines := []OrderLine{
		{ProductNumber: 1, ProductName: "mug", UnitPrice: NewMoney(12000), Quantity: 2},
		{ProductNumber: 2, ProductName: "bag", UnitPrice: MustParseMoney("9999.5"), Quantity: 1},
	}

	order := NewOrder("order-1", time.Now(), lines, DefaultShippingPolicy())

	assert.Equal(t, "33999.50", order.Subtotal.String())
	assert.Equal(t, "2500.00", order.ShippingFee.String())
	assert.Equal(t, "36499.50", order.PaymentAmount.String())
	assert.Equal(t, 3, order.TotalQuantity())
}

func TestNewOrder_FreeShipping(t *testing.T) {
	lines := []OrderLine{{ProductNumber: 1, ProductName: "chair", UnitPrice: NewMoney(25000), Quantity: 2}}

	order := NewOrder("order-2", time.Now(), lines, DefaultShippingPolicy())

	assert.Equal(t, "50000.00", order.PaymentAmount.String())
	assert.True(t, order.ShippingFee.IsZero())
}

func TestOrderLine_IsSnapshot(t *testing.T) {
	inv := Inventory{ProductNumber: 7, Name: "lamp", Price: NewMoney(30000), Stock: 3}
	line := NewOrderLine(inv, 1)
	lines := []OrderLine{line}
	order := NewOrder("order-3", time.Now(), lines, DefaultShippingPolicy())

	inv.Name = "lamp v2"
	inv.Price = NewMoney(99000)
	lines[0].Quantity = 50

	assert.Equal(t, "lamp", order.Lines[0].ProductName)
	assert.Equal(t, "30000.00", order.Lines[0].UnitPrice.String())
	assert.Equal(t, 1, order.Lines[0].Quantity)
}
