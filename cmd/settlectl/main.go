// cmd/settlectl/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"settlement-service/cmd/settlectl/cmds"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmds.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
