// server is the chat front door: it authenticates requests from forwarded proxy headers
// (when ENABLE_HEADER_AUTH is set) on both the HTTP and gRPC listeners.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lakechat/internal/audit"
	"lakechat/internal/config"
	"lakechat/internal/headerauth"
	"lakechat/internal/server"
	telemetryotel "lakechat/internal/telemetry/otel"
)

const serviceName = "lakechat-server"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	emitters := audit.Multi{audit.LogEmitter{}, telemetryotel.NewAuditEmitter(providers.LoggerProvider)}
	kafkaProducer := audit.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("audit: kafka sink enabled (topic %s)", cfg.AuditKafkaTopic)
	}
	auditLogger := audit.NewLogger(emitters)

	deps := server.Deps{HeaderAuth: headerauth.Install(cfg.EnableHeaderAuth, auditLogger)}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcServer, health := server.NewGRPCServer(deps)
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve grpc: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down servers...")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	drainCtx, drainCancel := context.WithTimeout(ctx, audit.ShutdownDrainDuration)
	defer drainCancel()
	if err := auditLogger.Wait(drainCtx); err != nil {
		log.Printf("audit: drain: %v", err)
	}
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("audit: kafka close: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("servers stopped")
}
