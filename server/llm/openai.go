package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// PingOptions controls JSON mode + reasoning + tokens.
type PingOptions struct {
	ReasoningEffort      string
	MaxOutputTokens      *int
	StructuredSchemaName string
	StructuredSchema     map[string]any
	StructuredStrict     bool
}

var httpClient = &http.Client{Timeout: 45 * time.Second}

// PingTextWithOpts sends one chat/completions request and returns the text.
func PingTextWithOpts(ctx context.Context, model, system, user string, opts PingOptions) (string, error) {
	cfg, err := resolveAPIConfig(model)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if opts.MaxOutputTokens != nil && *opts.MaxOutputTokens > 0 {
		payload["max_tokens"] = *opts.MaxOutputTokens
	}
	if strings.TrimSpace(opts.ReasoningEffort) != "" {
		payload["reasoning"] = map[string]any{"effort": opts.ReasoningEffort}
	}
	if opts.StructuredSchema != nil {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   coalesce(opts.StructuredSchemaName, "structured"),
				"strict": opts.StructuredStrict,
				"schema": opts.StructuredSchema,
			},
		}
	} else {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	applyTuningFromEnv(payload, cfg.Kind == providerOpenRouter)

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	setHeaderPreserveCase(req.Header, cfg.HeaderName, cfg.HeaderPrefix+cfg.APIKey)
	if cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", cfg.Organization)
	}
	for k, v := range cfg.ExtraHeaders {
		setHeaderPreserveCase(req.Header, k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	body := buf.Bytes()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, truncate(string(body), 800))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cc.Choices[0].Message.Content, nil
}

// ChooseAction asks the model for {"choice": i} with i indexing legal.
// The raw reply is returned alongside for debugging.
func ChooseAction(ctx context.Context, model, system, user string, legal []string, opts PingOptions) (int, string, error) {
	if len(legal) == 0 {
		return 0, "", errors.New("no legal actions")
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"choice": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"maximum":     len(legal) - 1,
				"description": "Index of the chosen entry in legal_actions",
			},
		},
		"required": []string{"choice"},
	}
	opts.StructuredSchema = schema
	opts.StructuredSchemaName = coalesce(opts.StructuredSchemaName, "scoundrel_action")
	opts.StructuredStrict = true
	if opts.MaxOutputTokens == nil && opts.ReasoningEffort == "" {
		env := envPingOptions()
		opts.MaxOutputTokens, opts.ReasoningEffort = env.MaxOutputTokens, env.ReasoningEffort
	}

	text, err := PingTextWithOpts(ctx, model, system, user, opts)
	if err != nil {
		return 0, text, err
	}

	raw := strings.TrimSpace(text)
	if raw == "" {
		return 0, raw, errors.New("empty response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		cleaned := extractJSONObject(raw)
		if cleaned == "" {
			return 0, raw, err
		}
		if err2 := json.Unmarshal([]byte(cleaned), &parsed); err2 != nil {
			return 0, raw, err
		}
	}
	choice, ok := coerceChoice(parsed, legal)
	if !ok {
		return 0, raw, errors.New("no valid choice in response")
	}
	return choice, raw, nil
}

// coerceChoice accepts an index (number or numeric string) or, failing that,
// an "action" string matching one of the labels.
func coerceChoice(parsed map[string]any, legal []string) (int, bool) {
	idx := -1
	switch t := parsed["choice"].(type) {
	case float64:
		if t == float64(int(t)) {
			idx = int(t)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			idx = int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			idx = n
		}
	}
	if idx >= 0 && idx < len(legal) {
		return idx, true
	}
	if act, ok := parsed["action"].(string); ok {
		act = strings.ToLower(strings.TrimSpace(act))
		for i, l := range legal {
			if strings.ToLower(l) == act {
				return i, true
			}
		}
	}
	return 0, false
}

// setHeaderPreserveCase stores the key exactly as given unless it is already
// canonical; some gateways expect e.g. "HTTP-Referer" verbatim.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if textproto.CanonicalMIMEHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	h[key] = []string{value}
}

func applyTuningFromEnv(m map[string]any, preferOpenRouter bool) {
	if v := envWithFallback(preferOpenRouter, "OPENAI_TEMPERATURE", "OPENROUTER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["temperature"] = f
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_TOP_P", "OPENROUTER_TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["top_p"] = f
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func coalesce(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}

func envPingOptions() PingOptions {
	opts := PingOptions{}
	preferOpenRouter := preferOpenRouterEnv()
	if v := envWithFallback(preferOpenRouter, "OPENAI_REASONING_EFFORT", "OPENROUTER_REASONING_EFFORT"); v != "" {
		switch strings.ToLower(v) {
		case "low", "medium", "high":
			opts.ReasoningEffort = strings.ToLower(v)
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_MAX_OUTPUT_TOKENS", "OPENROUTER_MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxOutputTokens = &n
		}
	}
	return opts
}
