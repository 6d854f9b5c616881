package catalog

import "order-bridge/internal/model"

// DefaultProducts is the storefront's kit line-up.
func DefaultProducts() []Product {
	return []Product{
		{SKU: "+V1", Name: "Kit 1 Unidade Mais Vigor", Price: model.NewAmount(99.00), WeightKg: 0.5, LengthCm: 20, HeightCm: 15, WidthCm: 10},
		{SKU: "+V3", Name: "Kit 3 Unidades Mais Vigor", Price: model.NewAmount(229.00), WeightKg: 1.2, LengthCm: 25, HeightCm: 20, WidthCm: 15},
		{SKU: "+V5", Name: "Kit 5 Unidades Mais Vigor", Price: model.NewAmount(349.00), WeightKg: 2.0, LengthCm: 30, HeightCm: 25, WidthCm: 20},
		// Tranquillium weights are gross weights from the ERP product sheet.
		{SKU: "+TQ1", ERPCode: "Traq1", Name: "Tranquillium 1", Price: model.NewAmount(88.00), WeightKg: 0.166, LengthCm: 20, HeightCm: 15, WidthCm: 10},
		{SKU: "+TQ3", ERPCode: "Traq3", Name: "Tranquillium 3", Price: model.NewAmount(198.00), WeightKg: 0.366, LengthCm: 25, HeightCm: 20, WidthCm: 15},
		{SKU: "+TQ5", ERPCode: "Traq5", Name: "Tranquillium 5", Price: model.NewAmount(298.00), WeightKg: 0.566, LengthCm: 30, HeightCm: 25, WidthCm: 20},
	}
}

// DefaultCoupons is the pre-generated coupon set.
func DefaultCoupons() []Coupon {
	return []Coupon{
		{Code: "PROMO1", Discount: model.NewAmount(10.00)},
		{Code: "PROMO5", Discount: model.NewAmount(5.00)},
		{Code: "PROMO20", Discount: model.NewAmount(20.00)},
	}
}
