package main

import (
	"context"
	"os"
	"tvatt-backend/cmd/tvatt-cli/commands"
	"tvatt-backend/internal/components/telemetry"

	_ "time/tzdata"
)

func main() {
	telemetry.InitSlog(os.Stderr, false)
	commands.ExecuteContext(context.Background())
}
