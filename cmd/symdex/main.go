// Package main contains symdex, the symbol upload ingestion service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/symdex/symdex/config"
	"github.com/symdex/symdex/internal/api"
	"github.com/symdex/symdex/internal/kv"
	kvmemory "github.com/symdex/symdex/internal/kv/memory"
	kvredis "github.com/symdex/symdex/internal/kv/redis"
	"github.com/symdex/symdex/internal/log"
	"github.com/symdex/symdex/internal/version"
	"github.com/symdex/symdex/pkg/dispatch"
	"github.com/symdex/symdex/pkg/upload"
	"github.com/symdex/symdex/pkg/uploaddb"
	"github.com/symdex/symdex/pkg/uploaddb/inmemory"
	"github.com/symdex/symdex/pkg/uploaddb/postgres"
)

func main() {
	var configFile string
	root := &cobra.Command{
		Use:          "symdex",
		Version:      version.FullVersion(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Specify configuration file location")
	log.SetLevel(zerolog.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root.RunE = func(_ *cobra.Command, _ []string) error {
		defer log.Ctx(ctx).Info().Msg("cmd/symdex: exiting")
		return run(ctx, configFile)
	}

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("cmd/symdex")
	}
}

func run(ctx context.Context, configFile string) error {
	o, err := config.NewOptionsFromConfig(configFile)
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(o.LogLevel); err == nil {
		log.SetLevel(level)
	}

	db, err := newUploadStore(ctx, o)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	cache, err := newCache(o)
	if err != nil {
		return err
	}
	defer cache.Close(ctx)

	queue := dispatch.New()
	defer queue.Stop()

	ing, err := upload.NewIngestor(upload.Config{
		DefaultURL:             o.UploadDefaultURL,
		Overrides:              bucketOverrides(o),
		FilePrefix:             o.UploadFilePrefix,
		DisallowedSnippets:     o.DisallowedSymbolsSnippets,
		Staging:                newStaging(o),
		DB:                     db,
		Dispatcher:             queue,
		Cache:                  cache,
		ReattemptAge:           o.ReattemptAge(),
		ReattemptMaxAttempts:   o.ReattemptMaxAttempts,
		DisableInlineReattempt: !o.ReattemptInline,
	})
	if err != nil {
		return err
	}
	if !o.ReattemptInline {
		go ing.RunReattempter(ctx, o.ReattemptAge())
	}
	go drainDispatches(ctx, queue)

	_, handler := api.New(api.Config{
		Ingestor:             ing,
		AllowDownloadDomains: o.AllowDownloadDomains,
	})

	srv := &http.Server{
		Addr:              o.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx).Str("address", o.Address).Msg("cmd/symdex: starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newUploadStore(ctx context.Context, o *config.Options) (uploaddb.Store, error) {
	if o.DatabaseURL == "" {
		log.Info(ctx).Msg("cmd/symdex: no database_url, upload records are in-memory")
		return inmemory.New(), nil
	}
	return postgres.New(ctx, o.DatabaseURL)
}

func newCache(o *config.Options) (kv.Store, error) {
	if o.CacheURL == "" {
		return kvmemory.New(0)
	}
	return kvredis.NewFromURL(o.CacheURL)
}

func newStaging(o *config.Options) upload.StagingBackend {
	if o.UploadInboxDirectory != "" {
		return upload.NewFilesystemStaging(o.UploadInboxDirectory)
	}
	return upload.NewObjectStoreStaging()
}

func bucketOverrides(o *config.Options) []upload.BucketOverride {
	overrides := make([]upload.BucketOverride, 0, len(o.UploadURLExceptions))
	for _, exc := range o.UploadURLExceptions {
		overrides = append(overrides, upload.BucketOverride{Pattern: exc.Pattern, URL: exc.URL})
	}
	return overrides
}

// drainDispatches consumes the dispatch queue. The archive processor that
// unpacks staged uploads runs as its own deployment and reads these ids from
// the shared queue; this local drain only keeps the channel from filling when
// none is attached.
func drainDispatches(ctx context.Context, queue *dispatch.Queue) {
	for {
		id, err := queue.Receive(ctx)
		if err != nil {
			return
		}
		log.Debug(ctx).Str("upload_id", id.String()).Msg("cmd/symdex: upload dispatched for processing")
	}
}
