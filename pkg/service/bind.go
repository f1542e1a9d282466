// Package service holds the CLI-facing operations. Commands Bind the shared
// photostream client, call a service and Unbind.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/zfogg/photostream/cli/pkg/api"
	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/config"
	"github.com/zfogg/photostream/cli/pkg/dispatch"
	"github.com/zfogg/photostream/cli/pkg/images"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/socket"
	"github.com/zfogg/photostream/cli/pkg/store"
)

type binding struct {
	client *photostream.Client
	loop   *dispatch.Loop
	cancel context.CancelFunc
	refs   int
}

var (
	bindMu sync.Mutex
	bound  *binding
)

// Bind returns the shared client, building it from configuration on the
// first call. Every Bind must be matched by an Unbind.
func Bind(ctx context.Context) (*photostream.Client, error) {
	bindMu.Lock()
	defer bindMu.Unlock()

	if bound != nil {
		bound.refs++
		return bound.client, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := build(ctx)
	if err != nil {
		return nil, err
	}
	bound = b
	logger.Debug("Photostream client bound", "db", b.client.Store().Path())
	return b.client, nil
}

// Unbind releases one Bind. The last one closes the client.
func Unbind() error {
	bindMu.Lock()
	defer bindMu.Unlock()

	if bound == nil {
		return nil
	}
	bound.refs--
	if bound.refs > 0 {
		return nil
	}

	b := bound
	bound = nil
	err := b.client.Close()
	b.loop.Close()
	b.cancel()
	logger.Debug("Photostream client unbound")
	return err
}

// Bindings returns the number of outstanding binds
func Bindings() int {
	bindMu.Lock()
	defer bindMu.Unlock()
	if bound == nil {
		return 0
	}
	return bound.refs
}

func build(ctx context.Context) (*binding, error) {
	httpClient, err := client.GetClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	conn, err := store.Open(config.GetString("cache.db_path"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// The client holds its own reference from here on.
	defer conn.Close()

	imgs, err := images.New(config.GetString("cache.image_dir"), config.GetSeconds("cache.memory_ttl"))
	if err != nil {
		return nil, fmt.Errorf("failed to open image cache: %w", err)
	}

	sock := socket.NewClient(socket.ConfigFromSettings(httpClient.InstallationID()))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loop := dispatch.NewLoop(64).Start(loopCtx)

	c, err := photostream.New(photostream.Options{
		API:          api.New(httpClient),
		Store:        conn,
		Images:       imgs,
		Socket:       sock,
		Hub:          sock.Hub(),
		Dispatcher:   loop,
		PageSize:     config.GetInt("api.page_size"),
		DismissDelay: config.GetMillis("progress.dismiss_delay"),
		Metrics:      metrics.Get(),
	})
	if err != nil {
		loop.Close()
		cancel()
		return nil, err
	}

	return &binding{client: c, loop: loop, cancel: cancel, refs: 1}, nil
}
