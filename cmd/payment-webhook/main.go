// Package main implements the Square webhook Lambda handler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/otel"

	"github.com/counterbook/backend/internal/payment"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// signatureHeader carries Square's HMAC of the notification URL plus body.
const signatureHeader = "x-square-hmacsha256-signature"

// handler receives Square event notifications.
type handler struct {
	processor *payment.WebhookProcessor
}

func newHandler(processor *payment.WebhookProcessor) *handler {
	return &handler{processor: processor}
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("payment-webhook")
	ctx, span := tracer.Start(ctx, "WebhookHandler")
	defer span.End()

	err := h.processor.Process(ctx, []byte(request.Body), request.Headers[signatureHeader])
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			logger.WarnContext(ctx, "webhook signature rejected")
			return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusUnauthorized}, nil
		}
		// Square retries on non-2xx, so transient store failures surface as 500.
		logger.ErrorContext(ctx, "webhook processing failed", slog.String("error", err.Error()))
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, nil
	}
	return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	ctx := context.Background()

	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)

	tableName := os.Getenv("TABLE_NAME")
	signatureKey := os.Getenv("SQUARE_WEBHOOK_SIGNATURE_KEY")
	webhookURL := os.Getenv("SQUARE_WEBHOOK_URL")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}

	dynamoClient := dynamodb.NewFromConfig(cfg)
	payments := payment.NewDynamoDBRepository(dynamoClient, tableName)
	processor := payment.NewWebhookProcessor(payments, signatureKey, webhookURL, logger)

	h := newHandler(processor)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
