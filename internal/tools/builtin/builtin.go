package builtin

import (
	"context"
	"fmt"
	"time"

	"agentstation/internal/tools"
)

// KnowledgeSearcher is the dependency behind the knowledge_search tool.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Seed registers the built-in tool set. The searcher is optional; when nil
// the knowledge_search tool is not registered.
func Seed(reg *tools.Registry, searcher KnowledgeSearcher) error {
	if err := reg.Register(CalculatorSchema(), Calculator); err != nil {
		return err
	}
	if err := reg.Register(weatherSchema(), fetchWeather); err != nil {
		return err
	}
	if err := reg.Register(emailSchema(), sendEmail); err != nil {
		return err
	}
	if err := reg.Register(databaseSchema(), queryDatabase); err != nil {
		return err
	}
	if searcher != nil {
		if err := reg.Register(knowledgeSchema(), knowledgeSearch(searcher)); err != nil {
			return err
		}
	}
	return nil
}

func weatherSchema() tools.Schema {
	return tools.Schema{
		Name:        "fetch_weather",
		Description: "Returns current weather for a city (canned data).",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"city"},
			"properties": map[string]any{
				"city": map[string]any{"type": "string", "description": "City name"},
			},
		},
		Returns: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city":        map[string]any{"type": "string"},
				"temperature": map[string]any{"type": "number"},
				"condition":   map[string]any{"type": "string"},
			},
		},
		TimeoutSeconds: 10,
		Tags:           []string{"weather", "api"},
	}
}

func fetchWeather(ctx context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	if city == "" {
		return nil, fmt.Errorf("fetch_weather: missing city argument")
	}

	// Simulated upstream latency, cancellable by the executor deadline.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	canned := map[string]map[string]any{
		"london": {"temperature": 14.0, "condition": "overcast"},
		"tokyo":  {"temperature": 22.0, "condition": "clear"},
		"sydney": {"temperature": 19.0, "condition": "windy"},
	}
	weather, ok := canned[normalizeCity(city)]
	if !ok {
		weather = map[string]any{"temperature": 20.0, "condition": "unknown"}
	}
	return map[string]any{
		"city":        city,
		"temperature": weather["temperature"],
		"condition":   weather["condition"],
	}, nil
}

func normalizeCity(city string) string {
	out := make([]rune, 0, len(city))
	for _, r := range city {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

func emailSchema() tools.Schema {
	return tools.Schema{
		Name:        "send_email",
		Description: "Sends an email. Requires SMTP configuration from the user.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"to", "subject", "body"},
			"properties": map[string]any{
				"to":      map[string]any{"type": "string", "description": "Recipient address"},
				"subject": map[string]any{"type": "string", "description": "Subject line"},
				"body":    map[string]any{"type": "string", "description": "Message body"},
			},
		},
		Returns: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"success": map[string]any{"type": "boolean"},
				"message": map[string]any{"type": "string"},
			},
		},
		RequiresUserConfig: true,
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"smtp_server", "smtp_port", "username", "password"},
			"properties": map[string]any{
				"smtp_server": map[string]any{"type": "string", "description": "SMTP server address"},
				"smtp_port":   map[string]any{"type": "integer", "description": "SMTP port"},
				"username":    map[string]any{"type": "string", "description": "SMTP username"},
				"password":    map[string]any{"type": "string", "description": "SMTP password", "format": "password"},
			},
		},
		Tags: []string{"email", "communication"},
	}
}

func sendEmail(ctx context.Context, args map[string]any) (any, error) {
	to, _ := args["to"].(string)
	if to == "" {
		return nil, fmt.Errorf("send_email: missing recipient")
	}
	if _, ok := args["smtp_server"]; !ok {
		return nil, fmt.Errorf("send_email: smtp_server not configured")
	}
	// Delivery is simulated; the contract of interest is the config gate above.
	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Email sent to %s", to),
	}, nil
}

func databaseSchema() tools.Schema {
	return tools.Schema{
		Name:        "query_database",
		Description: "Runs a read-only query against the demo dataset. Requires authorization.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "SQL query text"},
			},
		},
		Returns: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rows":  map[string]any{"type": "array"},
				"count": map[string]any{"type": "integer"},
			},
		},
		RequiresAuth:   true,
		TimeoutSeconds: 30,
		Tags:           []string{"database", "query"},
	}
}

func queryDatabase(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query_database: missing query argument")
	}
	rows := []map[string]any{
		{"id": 1, "name": "Ada", "age": 36},
		{"id": 2, "name": "Grace", "age": 45},
	}
	return map[string]any{"rows": rows, "count": len(rows)}, nil
}

func knowledgeSchema() tools.Schema {
	return tools.Schema{
		Name:        "knowledge_search",
		Description: "Searches the knowledge base for documents relevant to a query.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query"},
				"k":     map[string]any{"type": "integer", "description": "Number of documents (default 5)"},
			},
		},
		Returns: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"documents": map[string]any{"type": "array"},
			},
		},
		TimeoutSeconds: 15,
		Tags:           []string{"knowledge", "search"},
	}
}

func knowledgeSearch(searcher KnowledgeSearcher) tools.Invoker {
	return func(ctx context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("knowledge_search: missing query argument")
		}
		k := 5
		switch v := args["k"].(type) {
		case float64:
			k = int(v)
		case int:
			k = v
		}
		docs, err := searcher.Search(ctx, query, k)
		if err != nil {
			return nil, fmt.Errorf("knowledge_search: %w", err)
		}
		return map[string]any{"documents": docs}, nil
	}
}
