package main

import (
	"errors"
	"os"

	"stellar/cmd/stellar-cli/commands"
	"stellar/lib/serviceutil"
	"stellar/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(true)
	t, err := telemetry.SetupFromEnv(ctx, "stellar-cli")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		serviceutil.Fatal("setup telemetry", err)
	}
	if err == nil {
		defer t.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)
	}

	commands.ExecuteContext(ctx)
}
