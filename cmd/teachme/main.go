package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivlev/teachme/internal/config"
	"github.com/ivlev/teachme/internal/engine"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// .env не перезаписывает уже заданные переменные
	if err := config.LoadDotEnv(); err != nil {
		os.Stderr.WriteString("[!] cannot read .env: " + err.Error() + "\n")
	}

	a := &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookup:    os.LookupEnv,
		factories: engine.DefaultFactories(os.Stderr),
	}
	code := a.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
