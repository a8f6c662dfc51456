package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docufi/app/server"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	s := server.NewServer(os.Getenv("SERVER_ADDR"))

	go s.Run()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	sig := <-sigch
	slog.Info("received shutdown signal, stopping server", "signal", sig.String())
	s.Stop()
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		slog.Error("could not load .env file", "error", err)
		os.Exit(1)
	}
}
