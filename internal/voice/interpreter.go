// Package voice turns free-form spoken commands into typed inventory intents.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stocksense/stocksense/internal/inventory"
)

// Provider produces one completion for a prompt. Implementations wrap a
// hosted language model.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Interpreter extracts removal intents from natural language. Interpretation
// is best effort: a provider failure or a malformed completion yields an
// empty intent list, never an error.
type Interpreter struct {
	logger   *slog.Logger
	provider Provider
}

// NewInterpreter constructs an Interpreter instance.
func NewInterpreter(logger *slog.Logger, provider Provider) *Interpreter {
	return &Interpreter{logger: logger, provider: provider}
}

var _ inventory.IntentParser = (*Interpreter)(nil)

func removalPrompt(command string) string {
	return fmt.Sprintf(`Extract the products and quantities the user wants to remove from stock.

User said: %q

Respond with ONLY a JSON array, no markdown and no extra text. When no
quantity is given assume 1. Example:
[
  {"name": "mango", "qty": 5},
  {"name": "rice", "qty": 2}
]
If no product is mentioned respond with [].`, command)
}

// ParseRemovals interprets a command into ordered removal intents. Intents
// keep the order the model emitted them in. Quantities below one are raised
// to one; entries without a name are dropped.
func (i *Interpreter) ParseRemovals(ctx context.Context, command string) []inventory.RemovalIntent {
	if i.provider == nil || strings.TrimSpace(command) == "" {
		return nil
	}

	raw, err := i.provider.Complete(ctx, removalPrompt(command))
	if err != nil {
		i.logger.Warn("voice completion failed", slog.Any("error", err))
		return nil
	}

	payload, err := extractJSON(raw)
	if err != nil {
		i.logger.Warn("voice completion had no JSON", slog.String("response", raw))
		return nil
	}

	var rows []struct {
		Name string `json:"name"`
		Qty  int64  `json:"qty"`
	}
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		i.logger.Warn("voice completion JSON invalid", slog.Any("error", err))
		return nil
	}

	intents := make([]inventory.RemovalIntent, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			continue
		}
		qty := row.Qty
		if qty < 1 {
			qty = 1
		}
		intents = append(intents, inventory.RemovalIntent{Name: name, Quantity: qty})
	}
	return intents
}

// extractJSON returns the first JSON array or object embedded in a string.
func extractJSON(s string) (string, error) {
	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return "", errors.New("no JSON found in response")
	}
	closer := "]"
	if s[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", errors.New("no JSON found in response")
	}
	return s[start : end+1], nil
}
