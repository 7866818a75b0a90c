// Package main runs the ClicLoop API as an AWS Lambda function behind API Gateway.
package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/clicloop/internal/app"
	"github.com/clicloop/internal/config"
	"github.com/clicloop/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	// Connections are reused across warm invocations
	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	proxy := &proxyHandler{handler: application.Server.Handler()}
	lambda.Start(proxy.handle)
}
