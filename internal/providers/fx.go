package providers

import (
	"github.com/soundcrate/soundcrate/internal/providers/email"
	"github.com/soundcrate/soundcrate/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
