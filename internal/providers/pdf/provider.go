package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

type ReceiptData struct {
	StoreName     string
	OrderNumber   string
	DatePaid      string
	PaymentMethod string
	BuyerID       string

	Items []ReceiptItem

	Total    string
	Currency string
	Footer   string
}

type ReceiptItem struct {
	Description string
	Amount      string
}
