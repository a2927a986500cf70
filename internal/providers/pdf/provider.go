package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(func() Provider { return NewProvider() }),
)

type PDFProvider struct{}

func NewProvider() *PDFProvider {
	return &PDFProvider{}
}
