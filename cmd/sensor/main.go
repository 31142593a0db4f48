package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	grpcAdapter "github.com/laurarmit/DogBarkProject/internal/adapters/grpc"
	"github.com/laurarmit/DogBarkProject/internal/adapters/memory"
	"github.com/laurarmit/DogBarkProject/internal/adapters/mock"
	"github.com/laurarmit/DogBarkProject/internal/adapters/mqtt"
	"github.com/laurarmit/DogBarkProject/internal/adapters/sqlite"
	"github.com/laurarmit/DogBarkProject/internal/adapters/usb"
	"github.com/laurarmit/DogBarkProject/internal/config"
	"github.com/laurarmit/DogBarkProject/internal/deviceid"
	"github.com/laurarmit/DogBarkProject/internal/domain"
	"github.com/laurarmit/DogBarkProject/internal/metrics"
	"github.com/laurarmit/DogBarkProject/internal/ports"
	"github.com/laurarmit/DogBarkProject/pkg/tlsconfig"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Logger = cfg.NewLogger(os.Stdout)

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = deviceid.Host()
	}
	log.Info().Str("device_id", deviceID).Msg("starting dog bark sensor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize journal
	var repo domain.ReadingRepository
	switch cfg.Journal.Type {
	case "sqlite":
		r, err := sqlite.NewReadingRepository(cfg.Journal.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("db_path", cfg.Journal.DBPath).Msg("failed to open SQLite database")
		}
		defer r.Close()
		repo = r
		log.Info().Str("db_path", cfg.Journal.DBPath).Msg("initialized SQLite journal")
	default:
		repo = memory.NewReadingRepository()
		log.Info().Msg("initialized in-memory journal")
	}

	// Initialize meter
	var meter ports.SoundMeter
	switch cfg.SensorType {
	case "mock":
		meter = mock.NewFakeMeter(45.0, 10.0) // 45±10 dB (quiet room)
		log.Info().Msg("initialized mock sound meter")
	default:
		meter = usb.NewMeter()
		log.Info().
			Str("vendor_id", usb.VendorID.String()).
			Str("product_id", usb.ProductID.String()).
			Msg("initialized USB sound meter")
	}
	defer meter.Close()

	// Connect to the broker
	mqttCfg := mqtt.Config{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}
	if mqttCfg.ClientID == "" {
		mqttCfg.ClientID = "dogbark-" + strings.ReplaceAll(deviceID, ":", "")
	}
	if cfg.MQTT.TLSCert != "" || cfg.MQTT.TLSCA != "" {
		tlsCfg, err := tlsconfig.LoadClientTLS(cfg.MQTT.TLSCert, cfg.MQTT.TLSKey, cfg.MQTT.TLSCA)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load MQTT TLS config")
		}
		mqttCfg.TLS = tlsCfg
	}

	publisher := mqtt.New(mqttCfg, log.Logger)
	if err := publisher.Connect(ctx); err != nil {
		log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("failed to start MQTT client")
	}

	m := metrics.New()

	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = startGRPC(cfg.GRPC, repo)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = m.NewServer(cfg.MetricsAddr)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
	}

	// Start poll loop
	poller := ports.NewPoller(deviceID, meter, publisher,
		ports.WithInterval(cfg.SampleInterval),
		ports.WithPublishTimeout(cfg.MQTT.PublishTimeout),
		ports.WithJournal(repo, cfg.Journal.Retention),
		ports.WithMetrics(m),
		ports.WithLogger(log.Logger),
	)
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := publisher.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("mqtt disconnect failed")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Info().Msg("sensor stopped")
}

// startGRPC serves the status service in the background
func startGRPC(cfg config.GRPCConfig, repo domain.ReadingRepository) *grpc.Server {
	var serverOpts []grpc.ServerOption
	if cfg.TLSCert != "" {
		tlsCfg, err := tlsconfig.LoadServerTLS(cfg.TLSCert, cfg.TLSKey, cfg.TLSCA)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
		log.Info().Msg("mTLS enabled")
	} else {
		log.Warn().Msg("TLS_CERT not set, starting status service without TLS")
	}

	grpcServer := grpc.NewServer(serverOpts...)
	grpcAdapter.RegisterSensorServiceServer(grpcServer, grpcAdapter.NewSensorServiceHandler(repo))

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Addr).Msg("failed to listen")
	}
	log.Info().Str("addr", cfg.Addr).Msg("gRPC server listening")

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Error().Err(err).Msg("gRPC server stopped")
		}
	}()
	return grpcServer
}
