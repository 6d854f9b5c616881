package bling

import (
	"time"

	"order-bridge/internal/model"
)

// Order is a sales order to create in the ERP.
type Order struct {
	CustomerID    int64
	ProductCode   string
	Description   string
	Quantity      int
	UnitPrice     model.Amount
	TotalValue    model.Amount // sent as the order total when positive
	ShippingCost  model.Amount
	Date          time.Time
	ExpectedDate  time.Time
	StoreNumber   string
	Notes         string
	InternalNotes string
}

// OrderResult identifies the created order.
type OrderResult struct {
	ID       int64    `json:"id"`
	Number   int64    `json:"numero,omitempty"`
	Warnings []string `json:"alertas,omitempty"`
}

// Bling v3 wire types.

type orderPayload struct {
	Date          string        `json:"data"`
	ExpectedDate  string        `json:"dataPrevista,omitempty"`
	StoreNumber   string        `json:"numeroLoja,omitempty"`
	Contact       contact       `json:"contato"`
	Items         []orderItem   `json:"itens"`
	Total         *model.Amount `json:"total,omitempty"`
	Transport     *transport    `json:"transporte,omitempty"`
	Notes         string        `json:"observacoes,omitempty"`
	InternalNotes string        `json:"observacoesInternas,omitempty"`
}

type contact struct {
	ID int64 `json:"id"`
}

type orderItem struct {
	Code        string       `json:"codigo"`
	Description string       `json:"descricao,omitempty"`
	Quantity    int          `json:"quantidade"`
	Value       model.Amount `json:"valor"`
}

type transport struct {
	Freight model.Amount `json:"frete"`
}

type orderResponse struct {
	Data struct {
		ID      int64 `json:"id"`
		Numero  int64 `json:"numero"`
		Alertas []struct {
			Message string `json:"msg"`
		} `json:"alertas"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Message     string `json:"message"`
		Description string `json:"description"`
	} `json:"error"`
}
