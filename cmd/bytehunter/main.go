// cmd/bytehunter/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulntor/bytehunter/cmd/bytehunter/commands"
	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	"github.com/vulntor/bytehunter/pkg/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := commands.NewCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		f := format.New(os.Stdout, os.Stderr, format.ModeText, false, true)
		_ = f.PrintError(err, engine.Suggestions(err))
		os.Exit(engine.ExitCode(err))
	}
}
