// Package main implements the insight generation Lambda handler.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/otel"

	"github.com/counterbook/backend/internal/auth"
	"github.com/counterbook/backend/internal/insight"
	"github.com/counterbook/backend/internal/inventory"
	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/transaction"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// handler serves GET /insights (cached) and POST /insights/generate.
type handler struct {
	cache     insight.Repository
	generator *insight.Generator
}

func newHandler(cache insight.Repository, generator *insight.Generator) *handler {
	return &handler{cache: cache, generator: generator}
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	tracer := otel.Tracer("insight-generate")
	ctx, span := tracer.Start(ctx, "InsightHandler")
	defer span.End()

	claims, err := auth.FromRequest(request)
	if err != nil {
		return respond(http.StatusUnauthorized, map[string]string{"error": "missing tenant claims"}), nil
	}

	if request.RequestContext.HTTP.Method == http.MethodGet {
		date := request.QueryStringParameters["date"]
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}
		cached, err := h.cache.Get(ctx, claims.TenantID, date)
		if err != nil {
			if errors.Is(err, insight.ErrInsightNotFound) {
				return respond(http.StatusNotFound, map[string]string{
					"error": "no insights for this date; POST /insights/generate to create them",
				}), nil
			}
			logger.ErrorContext(ctx, "insight lookup failed",
				slog.String("tenant_id", claims.TenantID),
				slog.String("error", err.Error()),
			)
			return respond(http.StatusInternalServerError, map[string]string{"error": "lookup failed"}), nil
		}
		return respond(http.StatusOK, cached), nil
	}

	generated, err := h.generator.Generate(ctx, claims.TenantID)
	if err != nil {
		logger.ErrorContext(ctx, "insight generation failed",
			slog.String("tenant_id", claims.TenantID),
			slog.String("error", err.Error()),
		)
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return respond(http.StatusBadGateway, map[string]string{"error": "model returned an unusable response"}), nil
		}
		return respond(http.StatusServiceUnavailable, map[string]string{"error": "AI service unavailable; try again later"}), nil
	}
	return respond(http.StatusCreated, generated), nil
}

func respond(status int, body any) events.APIGatewayV2HTTPResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(raw),
	}
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
	modelID := os.Getenv("BEDROCK_MODEL_ID")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}

	dynamoClient := dynamodb.NewFromConfig(cfg)
	bedrockClient := bedrockruntime.NewFromConfig(cfg)

	cache := insight.NewDynamoDBRepository(dynamoClient, tableName)
	generator := insight.NewGenerator(
		bedrockClient,
		inventory.NewDynamoDBRepository(dynamoClient, tableName),
		transaction.NewDynamoDBRepository(dynamoClient, tableName),
		cache,
		insight.Config{ModelID: modelID},
		logger,
	)

	h := newHandler(cache, generator)
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
