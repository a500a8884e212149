package main

import (
	"context"

	"cruiseledger-backend/cmd/clubroyale-cli/commands"
	"cruiseledger-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "clubroyale-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
