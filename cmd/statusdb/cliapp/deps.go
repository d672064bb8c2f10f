package cliapp

import (
	"log/slog"

	"github.com/ankur-anand/statusdb/cmd/statusdb/config"
	"github.com/ankur-anand/statusdb/contract"
	"github.com/ankur-anand/statusdb/recordstore"
)

type Dependencies struct {
	Env    string
	Config config.Config

	// Storage
	Store  *recordstore.Store
	Status *contract.StatusMessage

	// Telemetry
	Logger *slog.Logger
}
