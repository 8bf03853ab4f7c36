package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"chatgpt-telegram-relay/internal/app"
)

func main() {
	ctx := context.Background()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	a, err := app.New(ctx, level)
	if err != nil {
		slog.Error("failed to initialise relay", "err", err)
		os.Exit(1)
	}

	lambda.Start(a.Handler.Handle)
}
