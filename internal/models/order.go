package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus is the normalized broker order state.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusUnknown   OrderStatus = "UNKNOWN"
)

// Terminal reports whether the broker will not change the status any further.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected
}

// Accepted reports whether the order reached the broker's book.
func (s OrderStatus) Accepted() bool {
	return s == OrderStatusSubmitted || s == OrderStatusFilled || s == OrderStatusPartial
}

// OrderRequest is a market order intent.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	ClientOrderID string
}

// OrderResult is what the broker reports for a submitted order.
type OrderResult struct {
	OrderID     string
	Symbol      string
	Side        OrderSide
	Status      OrderStatus
	Quantity    float64
	FilledQty   float64
	FillPrice   float64
	Message     string
	SubmittedAt time.Time
}

// Value returns the filled notional.
func (r OrderResult) Value() float64 {
	return r.FilledQty * r.FillPrice
}
