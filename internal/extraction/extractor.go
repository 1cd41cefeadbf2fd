// Package extraction turns free-text spending messages into structured
// expense candidates using an external language model.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"expense_ingest/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable covers network, HTTP and provider failures. Callers treat it as transient.
	ErrUnavailable = errors.New("extraction provider unavailable")
	// ErrMalformedResponse means the model answered with something that is not a JSON object.
	ErrMalformedResponse = errors.New("extraction response is not valid JSON")
)

// Candidate is the structured data extracted from one message. Amount is
// invalid when the model could not identify a value.
type Candidate struct {
	Amount       decimal.NullDecimal `json:"amount"`
	Description  string              `json:"description"`
	CategoryName string              `json:"category_name"`
}

// UnmarshalJSON treats the falsy amounts models emit for "unknown" ("",
// false, null) as an invalid amount rather than a decode error.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type plain Candidate
	var aux struct {
		plain
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Candidate(aux.plain)
	switch string(bytes.TrimSpace(aux.Amount)) {
	case "", "null", "false", `""`:
		c.Amount = decimal.NullDecimal{}
		return nil
	}
	return c.Amount.UnmarshalJSON(aux.Amount)
}

// Extractor extracts a Candidate from message text, given the user's categories.
type Extractor interface {
	Extract(ctx context.Context, text string, categories []model.Category) (*Candidate, error)
}

// SystemPrompt builds the instruction sent to the model.
func SystemPrompt(categories []model.Category) string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if c.Icon != "" {
			names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Icon))
		} else {
			names = append(names, c.Name)
		}
	}

	return `Você é um assistente que analisa mensagens de gastos e extrai informações estruturadas.
Categorias disponíveis: ` + strings.Join(names, ", ") + `

Analise a mensagem e retorne APENAS um JSON válido com:
{
  "amount": número (ex: 29.90),
  "description": "descrição breve",
  "category_name": "nome da categoria mais apropriada"
}

Se não conseguir identificar o valor, retorne null para amount.`
}

// ParseCandidate decodes the model output. Surrounding whitespace and a
// markdown code fence are tolerated; anything else that is not a JSON object
// yields ErrMalformedResponse.
func ParseCandidate(raw string) (*Candidate, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(raw, 120))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var c Candidate
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformedResponse)
	}
	c.Description = strings.TrimSpace(c.Description)
	c.CategoryName = strings.TrimSpace(c.CategoryName)
	return &c, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
