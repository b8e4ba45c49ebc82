package llm

import (
	"errors"
	"os"
	"strings"
)

type providerKind int

const (
	providerOpenAI providerKind = iota
	providerOpenRouter
)

const (
	openAIBase     = "https://api.openai.com/v1"
	openRouterBase = "https://openrouter.ai/api/v1"
)

type apiConfig struct {
	Kind         providerKind
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	ExtraHeaders map[string]string
}

// resolveAPIConfig works out provider, endpoint and credentials for model.
// Precedence: LLM_PROVIDER override, then an explicit base URL, then the
// model name ("openrouter/..."), then whichever key is present.
func resolveAPIConfig(model string) (apiConfig, error) {
	cfg := apiConfig{
		Model:        strings.TrimSpace(model),
		ExtraHeaders: map[string]string{},
	}

	cfg.Kind = providerOpenAI
	if preferOpenRouterEnv() {
		cfg.Kind = providerOpenRouter
	}
	if provider, ok := detectProviderFromModel(cfg.Model); ok {
		cfg.Kind = provider
	}

	override := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch override {
	case "openrouter":
		cfg.Kind = providerOpenRouter
	case "openai":
		cfg.Kind = providerOpenAI
	default:
		override = ""
	}

	if cfg.Model == "" {
		if cfg.Kind == providerOpenRouter {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
		}
		if cfg.Model == "" {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
	}
	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing: set OPENAI_MODEL/OPENROUTER_MODEL or pass a value")
	}

	base := firstNonEmpty(
		os.Getenv("OPENAI_API_BASE"),
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENROUTER_API_BASE"),
		os.Getenv("OPENROUTER_BASE_URL"),
	)
	if base == "" {
		base = openAIBase
		if cfg.Kind == providerOpenRouter {
			base = openRouterBase
		}
	}
	cfg.BaseURL = strings.TrimRight(base, "/")
	if override == "" && strings.Contains(strings.ToLower(cfg.BaseURL), "openrouter") {
		cfg.Kind = providerOpenRouter
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	openRouterKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if cfg.Kind == providerOpenRouter {
		cfg.APIKey = firstNonEmpty(openRouterKey, openAIKey)
	} else {
		cfg.APIKey = firstNonEmpty(openAIKey, openRouterKey)
	}
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}

	cfg.HeaderName = firstNonEmpty(os.Getenv("OPENAI_API_KEY_HEADER"), os.Getenv("OPENROUTER_API_KEY_HEADER"))
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Authorization"
	}
	cfg.HeaderPrefix = os.Getenv("OPENAI_API_KEY_PREFIX")
	if cfg.HeaderPrefix == "" {
		cfg.HeaderPrefix = os.Getenv("OPENROUTER_API_KEY_PREFIX")
	}
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(cfg.HeaderPrefix) == "" {
		cfg.HeaderPrefix = "Bearer "
	}
	cfg.Organization = strings.TrimSpace(os.Getenv("OPENAI_ORG"))

	if cfg.Kind == providerOpenRouter {
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_SITE_URL")); v != "" {
			cfg.ExtraHeaders["HTTP-Referer"] = v
			cfg.ExtraHeaders["Referer"] = v
		}
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_TITLE")); v != "" {
			cfg.ExtraHeaders["X-Title"] = v
		}
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func detectProviderFromModel(model string) (providerKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if strings.HasPrefix(normalized, "openrouter/") {
		return providerOpenRouter, true
	}
	return providerOpenAI, false
}

func envWithFallback(preferOpenRouter bool, openAIKey, openRouterKey string) string {
	if preferOpenRouter {
		return firstNonEmpty(os.Getenv(openRouterKey), os.Getenv(openAIKey))
	}
	return firstNonEmpty(os.Getenv(openAIKey), os.Getenv(openRouterKey))
}

func preferOpenRouterEnv() bool {
	set := func(k string) bool { return strings.TrimSpace(os.Getenv(k)) != "" }
	if set("OPENROUTER_API_KEY") && !set("OPENAI_API_KEY") {
		return true
	}
	if set("OPENROUTER_MODEL") && !set("OPENAI_MODEL") {
		return true
	}
	if set("OPENROUTER_API_BASE") || set("OPENROUTER_BASE_URL") {
		return true
	}
	for _, k := range []string{"OPENAI_API_BASE", "OPENAI_BASE_URL"} {
		if strings.Contains(strings.ToLower(os.Getenv(k)), "openrouter") {
			return true
		}
	}
	return false
}
