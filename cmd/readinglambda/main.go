package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/omutucat/reading-counter-dc/internal/app"
	"github.com/omutucat/reading-counter-dc/internal/config"
	"github.com/omutucat/reading-counter-dc/pkg/logger"
	"go.uber.org/zap"
)

var (
	// chiLambda wraps the chi router for API Gateway v2
	chiLambda *chiadapter.ChiLambdaV2

	application *app.App
	log         *zap.Logger
)

// init runs during cold start
func init() {
	coldStart := time.Now()

	cfg := config.Load()
	log = logger.NewLogger(cfg.ServiceName, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	var err error
	application, err = app.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize service", zap.Error(err))
	}

	chiLambda = chiadapter.NewV2(application.Router)

	log.Info("Lambda cold start completed", zap.Duration("duration", time.Since(coldStart)))
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	// The execution environment may freeze once we return.
	application.Service.Wait()

	if err != nil {
		log.Error("Lambda proxy failed",
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Error(err),
		)
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
