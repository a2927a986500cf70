package providers

import (
	"github.com/smallbiznis/revenue/internal/providers/email"
	"github.com/smallbiznis/revenue/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
