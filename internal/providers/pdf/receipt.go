package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.StoreName, props.Text{
			Size:  12,
			Align: align.Right,
			Top:   5,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Order number: "+receipt.OrderNumber, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 5}),
			text.New("Payment method: "+receipt.PaymentMethod, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.BuyerID, props.Text{Top: 5}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Total+" "+receipt.Currency+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	// Table Header
	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range receipt.Items {
		m.AddRow(12,
			text.NewCol(9, item.Description, props.Text{Size: 9}),
			text.NewCol(3, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(7),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(3, receipt.Total+" "+receipt.Currency, props.Text{Size: 9, Align: align.Right}),
	)

	if receipt.Footer != "" {
		m.AddRow(15,
			text.NewCol(12, receipt.Footer, props.Text{Size: 8, Top: 6}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
