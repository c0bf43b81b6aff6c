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

// saga-orchestrator runs the banking saga orchestration service: it drives
// user-onboarding and payment-processing sagas across the participant
// services and exposes the saga management HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/internal/sagaorchestrator"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "saga-orchestrator",
	Short: "Saga orchestration service for the banking microservices",
	Long: `saga-orchestrator coordinates multi-service banking transactions as
sagas: it sends each step's command to the owning participant service, reacts
to the outcome events, and compensates completed steps in reverse order when
a step fails. Every state change is recorded in a durable audit trail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to the configuration file")
}

func run() error {
	config, err := sagaorchestrator.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger.InitLogger(config.Logging.Development)
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	service, err := sagaorchestrator.NewService(config)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting saga orchestrator",
		zap.Int("port", config.Server.Port),
		zap.String("storage", config.Storage.Type),
		zap.String("messaging", config.Messaging.Mode))
	return service.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
