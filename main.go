package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/server"
	"github.com/fraudguard-labs/fraudguard/service/logger"
)

func main() {
	server.Init()

	ctx := context.Background()
	addr := fmt.Sprintf("%s:%d", env.GetString(ctx, "API_HOST"), env.GetInt(ctx, "API_PORT"))

	logger.For(ctx).Infof("fraudguard listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.For(ctx).Fatalf("server exited: %s", err)
	}
}
