package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/counterbook/backend/internal/model"
	"github.com/counterbook/backend/internal/transaction"
)

const (
	// DefaultModelID is the default Bedrock model for insight generation.
	DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	// anthropicVersion is the required API version for Claude on Bedrock.
	anthropicVersion = "bedrock-2023-05-31"
	// maxTokens bounds the structured response size.
	maxTokens = 2048

	// analysisWindowDays is how far back the ledger is read.
	analysisWindowDays = 30
	// maxLowStockInPrompt caps the low-stock listing sent to the model.
	maxLowStockInPrompt = 20
	// maxTopProducts caps the best-seller ranking.
	maxTopProducts = 5
)

// BedrockInvoker abstracts Bedrock model invocation for dependency inversion.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// ProductLister is the slice of the inventory repository the generator reads.
type ProductLister interface {
	ListAll(ctx context.Context, tenantID string) ([]*model.Product, error)
}

// Config holds configuration for the generator.
type Config struct {
	ModelID string
}

// Generator produces a tenant's daily insight from its inventory and ledger.
type Generator struct {
	bedrock BedrockInvoker
	modelID string
	stock   ProductLister
	ledger  transaction.Repository
	cache   Repository
	logger  *slog.Logger
	now     func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(bedrock BedrockInvoker, stock ProductLister, ledger transaction.Repository, cache Repository, cfg Config, logger *slog.Logger) *Generator {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Generator{
		bedrock: bedrock,
		modelID: modelID,
		stock:   stock,
		ledger:  ledger,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// claudeRequest is the Claude Messages API request format for Bedrock.
type claudeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the Claude Messages API response format.
type claudeResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// structuredInsight is the JSON shape the model is instructed to return.
type structuredInsight struct {
	Summary            string                    `json:"summary"`
	Forecasts          []model.Forecast          `json:"forecasts"`
	ReorderSuggestions []model.ReorderSuggestion `json:"reorder_suggestions"`
	SpendingTrends     []string                  `json:"spending_trends"`
	RevenueInsights    []string                  `json:"revenue_insights"`
}

// Generate gathers the tenant's data, asks the model for a structured
// analysis, caches it under today's date, and returns it.
func (g *Generator) Generate(ctx context.Context, tenantID string) (*model.Insight, error) {
	var (
		products []*model.Product
		txns     []*model.Transaction
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		products, err = g.stock.ListAll(egCtx, tenantID)
		return err
	})
	eg.Go(func() error {
		var err error
		txns, err = g.recentTransactions(egCtx, tenantID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("gather business data: %w", err)
	}

	prompt := buildPrompt(products, summarizeSales(txns))
	raw, err := g.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var structured structuredInsight
	if err := json.Unmarshal(extractJSON(raw), &structured); err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	if structured.Summary == "" {
		structured.Summary = "No summary generated."
	}

	now := g.now().UTC()
	insight := &model.Insight{
		TenantID:           tenantID,
		Date:               now.Format("2006-01-02"),
		Summary:            structured.Summary,
		Forecasts:          structured.Forecasts,
		ReorderSuggestions: structured.ReorderSuggestions,
		SpendingTrends:     structured.SpendingTrends,
		RevenueInsights:    structured.RevenueInsights,
		GeneratedAt:        now,
		ExpiresAt:          now.Add(CacheTTLDays * 24 * time.Hour).Unix(),
	}
	if err := g.cache.Put(ctx, insight); err != nil {
		return nil, err
	}

	g.logger.InfoContext(ctx, "insight generated",
		"tenant_id", tenantID,
		"date", insight.Date,
		"products", len(products),
		"transactions", len(txns),
	)
	return insight, nil
}

// recentTransactions pages the ledger over the analysis window.
func (g *Generator) recentTransactions(ctx context.Context, tenantID string) ([]*model.Transaction, error) {
	end := g.now().UTC()
	start := end.AddDate(0, 0, -analysisWindowDays)

	var all []*model.Transaction
	token := ""
	for {
		page, err := g.ledger.List(ctx, tenantID, transaction.ListOptions{
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
			Limit:     100,
			NextToken: token,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Transactions...)
		if page.NextToken == "" {
			return all, nil
		}
		token = page.NextToken
	}
}

// salesSummary condenses the window of transactions for the prompt.
type salesSummary struct {
	TotalRevenue     decimal.Decimal
	TransactionCount int
	TopProducts      []topProduct
	RevenueByWeekday map[string]decimal.Decimal
}

type topProduct struct {
	ProductName  string          `json:"product_name"`
	Revenue      decimal.Decimal `json:"revenue"`
	QuantitySold int             `json:"quantity_sold"`
}

func summarizeSales(txns []*model.Transaction) salesSummary {
	summary := salesSummary{
		TransactionCount: len(txns),
		RevenueByWeekday: make(map[string]decimal.Decimal),
	}
	byProduct := make(map[string]*topProduct)

	for _, txn := range txns {
		summary.TotalRevenue = summary.TotalRevenue.Add(txn.Total.Decimal)
		if !txn.CreatedAt.IsZero() {
			dow := txn.CreatedAt.Weekday().String()
			summary.RevenueByWeekday[dow] = summary.RevenueByWeekday[dow].Add(txn.Total.Decimal)
		}
		for _, line := range txn.Items {
			tp, ok := byProduct[line.ProductID]
			if !ok {
				tp = &topProduct{ProductName: line.ProductName}
				byProduct[line.ProductID] = tp
			}
			tp.Revenue = tp.Revenue.Add(line.UnitPrice.MulInt(line.Quantity).Decimal)
			tp.QuantitySold += line.Quantity
		}
	}

	for _, tp := range byProduct {
		summary.TopProducts = append(summary.TopProducts, *tp)
	}
	sort.Slice(summary.TopProducts, func(i, j int) bool {
		return summary.TopProducts[i].Revenue.GreaterThan(summary.TopProducts[j].Revenue)
	})
	if len(summary.TopProducts) > maxTopProducts {
		summary.TopProducts = summary.TopProducts[:maxTopProducts]
	}
	return summary
}

func buildPrompt(products []*model.Product, sales salesSummary) string {
	inventoryValue := decimal.Zero
	var lowStock []*model.Product
	for _, p := range products {
		inventoryValue = inventoryValue.Add(p.UnitCost.MulInt(p.Quantity).Decimal)
		if p.LowStock() {
			lowStock = append(lowStock, p)
		}
	}

	var lowStockList strings.Builder
	for i, p := range lowStock {
		if i == maxLowStockInPrompt {
			break
		}
		fmt.Fprintf(&lowStockList, "- %s (ID: %s): quantity=%d, threshold=%d\n",
			p.Name, p.ID, p.Quantity, p.ReorderThreshold)
	}
	if lowStockList.Len() == 0 {
		lowStockList.WriteString("(none)\n")
	}

	topJSON, _ := json.Marshal(sales.TopProducts)
	weekdayJSON, _ := json.Marshal(sales.RevenueByWeekday)

	return fmt.Sprintf(`You are a business analyst for a small business CRM. Based on the following data, generate a JSON object with the specified fields.

## Business Context (Inventory)
- Total number of products: %d
- Total inventory value (estimated): $%s
- Number of low-stock items (quantity <= reorder threshold): %d

Low-stock items (first %d):
%s
## Transaction Summary (Last %d Days)
- Total revenue: $%s
- Transaction count: %d
- Top selling products: %s
- Revenue by day of week: %s

## Your Task
Generate a JSON object with exactly these keys (no extra keys):

1. "summary" (string): A natural language business summary in 2-3 sentences about the current state (inventory, sales, trends).

2. "forecasts" (array of objects): Top 5 products likely to need restocking soon. Each object: {"product_name": str, "product_id": str or null, "estimated_restock_date": str (YYYY-MM-DD or "ASAP"), "reason": str}

3. "reorder_suggestions" (array of objects): Products below threshold with suggested order quantities. Each: {"product_name": str, "product_id": str or null, "current_quantity": int, "reorder_threshold": int, "suggested_order_quantity": int, "reason": str}

4. "spending_trends" (array of strings): 2-4 brief bullet points about spending/cost trends and recommendations.

5. "revenue_insights" (array of strings): 2-4 brief bullet points about revenue (best days, trends, growth opportunities).

Return ONLY valid JSON. No markdown, no explanation outside the JSON.`,
		len(products),
		inventoryValue.StringFixed(2),
		len(lowStock),
		maxLowStockInPrompt,
		lowStockList.String(),
		analysisWindowDays,
		sales.TotalRevenue.StringFixed(2),
		sales.TransactionCount,
		topJSON,
		weekdayJSON,
	)
}

// invoke sends one user message and returns the first text block.
func (g *Generator) invoke(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	modelID := g.modelID
	output, err := g.bedrock.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId: &modelID,
		Body:    reqBody,
	})
	if err != nil {
		return "", fmt.Errorf("invoke model: %w", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("empty model response")
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSON unwraps a markdown code fence if the model added one.
func extractJSON(text string) []byte {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	return []byte(text)
}
