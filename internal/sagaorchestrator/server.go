// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package sagaorchestrator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/messaging"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/monitoring"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/orchestrator"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/retry"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state/storage"
)

// Service owns the whole orchestrator process: storage, messaging, the saga
// engine and the HTTP API, assembled from Config and torn down in reverse
// order on shutdown.
type Service struct {
	config     *Config
	logger     *zap.Logger
	store      saga.AuditStore
	dedup      saga.EventDedup
	gateway    saga.ParticipantGateway
	dispatcher *orchestrator.Dispatcher
	orch       *orchestrator.Orchestrator
	consumer   *messaging.KafkaEventConsumer
	httpServer *http.Server
}

// NewService wires the orchestrator from the configuration.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("service: config is required")
	}

	log := logger.GetLogger()
	s := &Service{config: config, logger: log}

	registry, err := NewBankingRegistry()
	if err != nil {
		return nil, err
	}

	if err := s.buildStore(); err != nil {
		return nil, err
	}
	if err := s.buildDedup(); err != nil {
		s.closePartial()
		return nil, err
	}

	sm := state.NewManager(s.store, registry, log)

	metrics, err := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		s.closePartial()
		return nil, fmt.Errorf("service: register metrics: %w", err)
	}

	// The gateway needs the dispatcher as its event sink and the dispatcher
	// needs the orchestrator, which needs the gateway. sinkProxy breaks the
	// cycle: it is handed out first and bound to the dispatcher last.
	sink := &sinkProxy{}

	if err := s.buildGateway(sink); err != nil {
		s.closePartial()
		return nil, err
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		StateManager: sm,
		Registry:     registry,
		Gateway:      s.gateway,
		RetryPolicy: retry.NewExponentialBackoff(
			config.Retry.MaxAttempts,
			config.Retry.InitialDelay,
			config.Retry.MaxDelay,
		),
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		s.closePartial()
		return nil, err
	}
	s.orch = orch

	dispatcher, err := orchestrator.NewDispatcher(&orchestrator.DispatcherConfig{
		Handler: orch,
		Dedup:   s.dedup,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		s.closePartial()
		return nil, err
	}
	s.dispatcher = dispatcher
	sink.bind(dispatcher)

	if config.Messaging.Mode == "kafka" {
		consumer, err := messaging.NewKafkaEventConsumer(&messaging.KafkaEventConsumerConfig{
			Brokers: config.Messaging.Brokers,
			Topic:   messaging.EventTopic(config.Messaging.TopicPrefix),
			GroupID: config.Messaging.GroupID,
		}, dispatcher)
		if err != nil {
			s.closePartial()
			return nil, err
		}
		s.consumer = consumer
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Server.Port),
		Handler: s.buildRouter(sm),
	}
	return s, nil
}

func (s *Service) buildStore() error {
	switch s.config.Storage.Type {
	case "postgres":
		store, err := storage.NewPostgresStore(storage.DefaultPostgresConfig(s.config.Storage.DSN))
		if err != nil {
			return err
		}
		s.store = store
	default:
		s.store = storage.NewMemoryStore()
	}
	return nil
}

func (s *Service) buildDedup() error {
	switch s.config.Dedup.Type {
	case "redis":
		dedup, err := storage.NewRedisDedup(context.Background(), &storage.RedisDedupConfig{
			Addr:     s.config.Dedup.Addr,
			Password: s.config.Dedup.Password,
			DB:       s.config.Dedup.DB,
			TTL:      s.config.Dedup.TTL,
		})
		if err != nil {
			return err
		}
		s.dedup = dedup
	default:
		s.dedup = storage.NewMemoryDedup(s.config.Dedup.TTL)
	}
	return nil
}

func (s *Service) buildGateway(sink saga.EventSink) error {
	switch s.config.Messaging.Mode {
	case "kafka":
		gateway, err := messaging.NewKafkaGateway(&messaging.KafkaGatewayConfig{
			Brokers:     s.config.Messaging.Brokers,
			TopicPrefix: s.config.Messaging.TopicPrefix,
		})
		if err != nil {
			return err
		}
		s.gateway = gateway
	default:
		gateway := messaging.NewInProcGateway(sink)
		RegisterSimulatedParticipants(gateway)
		s.gateway = gateway
	}
	return nil
}

func (s *Service) buildRouter(sm saga.StateManager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	NewHandler(s.orch, sm).RegisterRoutes(engine)
	return engine
}

// Run recovers in-flight sagas, starts the event consumer and the HTTP
// server, and blocks until the context is cancelled, then shuts everything
// down in reverse order.
func (s *Service) Run(ctx context.Context) error {
	if err := s.orch.Recover(ctx); err != nil {
		return fmt.Errorf("service: recover sagas: %w", err)
	}

	errCh := make(chan error, 2)

	if s.consumer != nil {
		go func() {
			if err := s.consumer.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("event consumer: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown did not finish cleanly", zap.Error(err))
	}

	s.shutdown()
	return runErr
}

// shutdown tears the pipeline down front to back: stop inbound events first,
// drain the dispatcher, then close the stores.
func (s *Service) shutdown() {
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.logger.Warn("closing event consumer", zap.Error(err))
		}
	}
	if err := s.gateway.Close(); err != nil {
		s.logger.Warn("closing participant gateway", zap.Error(err))
	}
	if err := s.dispatcher.Close(); err != nil {
		s.logger.Warn("closing dispatcher", zap.Error(err))
	}
	if err := s.dedup.Close(); err != nil {
		s.logger.Warn("closing dedup cache", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing audit store", zap.Error(err))
	}
	s.logger.Info("orchestrator stopped")
}

// closePartial releases whatever NewService managed to open before failing.
func (s *Service) closePartial() {
	if s.gateway != nil {
		_ = s.gateway.Close()
	}
	if s.dedup != nil {
		_ = s.dedup.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// sinkProxy defers the event sink binding until the dispatcher exists.
type sinkProxy struct {
	sink saga.EventSink
}

func (p *sinkProxy) bind(sink saga.EventSink) { p.sink = sink }

func (p *sinkProxy) Dispatch(ctx context.Context, event *saga.Event) error {
	if p.sink == nil {
		return fmt.Errorf("event sink not ready")
	}
	return p.sink.Dispatch(ctx, event)
}

var _ saga.EventSink = (*sinkProxy)(nil)
