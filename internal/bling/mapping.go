package bling

import (
	"fmt"
	"strconv"

	"order-bridge/internal/mercadopago"
)

// Defaults fill order fields a payment does not carry.
type Defaults struct {
	CustomerID  int64
	ProductCode string
}

// OrderFromPayment maps an approved Mercado Pago payment to an ERP order.
// The product is the first non-shipping line of the payment; the shipping
// line, if any, becomes the order's freight.
func OrderFromPayment(p *mercadopago.Payment, d Defaults) Order {
	id := strconv.FormatInt(p.ID, 10)

	o := Order{
		CustomerID:    d.CustomerID,
		ProductCode:   d.ProductCode,
		Quantity:      1,
		TotalValue:    p.TransactionAmount,
		StoreNumber:   id,
		Notes:         fmt.Sprintf("Pedido referente ao pagamento #%s do Mercado Pago. Comprador: %s.", id, p.PayerName()),
		InternalNotes: "MP Payment ID: " + id,
	}

	var product *mercadopago.PaymentItem
	for i, item := range p.AdditionalInfo.Items {
		if item.ID == mercadopago.ShippingItemID {
			qty := max(int(item.Quantity), 1)
			o.ShippingCost = o.ShippingCost.Add(item.UnitPrice.Mul(qty))
			continue
		}
		if product == nil {
			product = &p.AdditionalInfo.Items[i]
		}
	}

	if product != nil {
		if product.ID != "" {
			o.ProductCode = product.ID
		}
		o.Description = product.Title
		if product.Quantity > 0 {
			o.Quantity = int(product.Quantity)
		}
		o.UnitPrice = product.UnitPrice
	}
	if o.UnitPrice.IsZero() {
		// No itemized price: everything but freight is the product.
		o.UnitPrice = p.TransactionAmount.Sub(o.ShippingCost).Div(o.Quantity)
	}
	return o
}
