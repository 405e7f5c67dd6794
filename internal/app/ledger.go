package app

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/ledger"
)

// NewLedgerClient returns the ledger implementation selected by cfg.Mode.
// It is chosen once at startup; services only see ledger.Client. RPC calls
// are traced by the client itself as external segments named after the
// JSON-RPC method.
func NewLedgerClient(cfg config.LedgerConfig, logger logrus.FieldLogger) (ledger.Client, error) {
	switch cfg.Mode {
	case config.LedgerModeSimulated, "":
		logger.Warn("using simulated ledger; payments are not real")
		return ledger.NewSimulated(), nil

	case config.LedgerModeRPC:
		if cfg.RPCURL == "" || cfg.PackageID == "" {
			return nil, fmt.Errorf("ledger mode %q requires LEDGER_RPC_URL and LEDGER_PACKAGE_ID", cfg.Mode)
		}

		logger.WithFields(logrus.Fields{
			"url":        cfg.RPCURL,
			"package_id": cfg.PackageID,
		}).Info("using ledger RPC")
		return ledger.NewRPCClient(ledger.RPCConfig{
			URL:               cfg.RPCURL,
			PackageID:         cfg.PackageID,
			PlatformWallet:    cfg.PlatformWallet,
			GasBudget:         cfg.GasBudget,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}, ledgerHTTPClient(cfg)), nil

	default:
		return nil, fmt.Errorf("unknown ledger mode %q", cfg.Mode)
	}
}

// ledgerHTTPClient keeps the default transport; the RPC client opens its own
// external segment per call.
func ledgerHTTPClient(cfg config.LedgerConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}
