package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"example.com/safegear/services/ppe/internal/api"
	"example.com/safegear/services/ppe/internal/cache"
	"example.com/safegear/services/ppe/internal/db"
	"example.com/safegear/services/ppe/internal/docs"
	"example.com/safegear/services/ppe/internal/filestore"
	"example.com/safegear/services/ppe/internal/messagebus"
	"example.com/safegear/services/ppe/internal/search"
	"example.com/safegear/services/ppe/internal/service"
	"example.com/safegear/services/ppe/internal/signer"
	"example.com/safegear/services/ppe/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	conn, err := db.Connect(&cfg.Database)
	if err != nil {
		return err
	}

	cacheClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	var events service.EventPublisher
	if cfg.ServiceBus.ConnectionString != "" {
		bus, err := messagebus.NewClient(&cfg.ServiceBus)
		if err != nil {
			return err
		}
		defer bus.Close(context.Background())
		events = service.NewEventPublisher(bus, cfg.ServiceBus.EventsQueue, log)
	} else {
		log.Warn("Message bus not configured, lifecycle events disabled")
		events = service.NewNopPublisher()
	}

	searchClient, err := search.NewClient(&cfg.Elasticsearch)
	if err != nil {
		return err
	}

	files, err := filestore.NewDiskStore(&cfg.FileStore)
	if err != nil {
		return err
	}

	nrApp, err := telemetry.InitNewRelic(&cfg.NewRelic)
	if err != nil {
		log.WithError(err).Warn("New Relic initialization failed, continuing without tracing")
	}

	signerClient := signer.NewClient(&cfg.Signer)
	renderer := docs.NewRenderer(&cfg.Renderer)

	deliveries := service.NewDeliveryService(conn, cacheClient, events, searchClient, log)
	schedules := service.NewScheduleService(conn, log)
	signatures := service.NewSignatureService(conn, signerClient, renderer, files, log)

	handler := api.NewHandler(deliveries, schedules, signatures, searchClient, log)
	server := api.NewServer(&cfg.Server, handler, nrApp, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
