package cmd

import (
	"log/slog"

	"github.com/dukex/sniper/pkg/connector"
)

// NewConnector selects the platform connector. Only the static provider
// exists today; the indirection keeps the binaries unchanged when a live
// platform client lands.
func NewConnector(provider string, logger *slog.Logger) connector.Connector {
	switch provider {
	case "", "static":
		logger.Info("Using static platform connector")

		return connector.NewStatic(connector.SampleNotes())
	default:
		panic("unsupported connector provider: " + provider)
	}
}
