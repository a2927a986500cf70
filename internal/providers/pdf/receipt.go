package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData is the pre-formatted content of a payment receipt.
type ReceiptData struct {
	Issuer        string
	TransactionID string
	BillNumber    string
	AccountNumber string
	ServiceName   string
	ServiceCode   string
	PayerName     string
	PayerEmail    string
	Status        string
	Currency      string
	Amount        string
	Fee           string
	Total         string
	DatePaid      string
	Lines         []ReceiptLine
}

// ReceiptLine is one label/value pair from the bill details, such as a reading.
type ReceiptLine struct {
	Label string
	Value string
}

var ErrMissingTransaction = errors.New("receipt_missing_transaction")

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) (io.Reader, error) {
	if receipt.TransactionID == "" {
		return nil, ErrMissingTransaction
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.Issuer, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Transaction: "+receipt.TransactionID, props.Text{Top: 0}),
			text.New("Bill number: "+receipt.BillNumber, props.Text{Top: 5}),
			text.New("Account: "+receipt.AccountNumber, props.Text{Top: 10}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Paid by", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(receipt.PayerName, props.Text{Top: 5, Align: align.Right}),
			text.New(receipt.PayerEmail, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, receipt.Currency+" "+receipt.Total+" "+receipt.Status, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, receipt.ServiceName+" ("+receipt.ServiceCode+")", props.Text{Size: 9}),
		text.NewCol(4, receipt.Amount, props.Text{Size: 9, Align: align.Right}),
	)
	for _, line := range receipt.Lines {
		m.AddRow(8,
			text.NewCol(8, line.Label, props.Text{Size: 8}),
			text.NewCol(4, line.Value, props.Text{Size: 8, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Processing fee", props.Text{Size: 9}),
		text.NewCol(2, receipt.Fee, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, receipt.Total, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
