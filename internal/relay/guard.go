package relay

import "github.com/compresr/stream-relay/internal/config"

// Guard is a precondition over the request configuration.
// It returns nil when the request may proceed.
type Guard func(RequestConfig) error

// GuardChain evaluates guards in order and stops at the first failure.
type GuardChain []Guard

// Check returns the first guard failure, or nil.
func (c GuardChain) Check(cfg RequestConfig) error {
	for _, guard := range c {
		if err := guard(cfg); err != nil {
			return err
		}
	}
	return nil
}

// GuardOptions selects which guards a chain contains.
type GuardOptions struct {
	Mode           config.Mode
	RequireProject bool
	Model          string
}

// NewGuardChain builds the chain for a deployment:
//  1. API key present
//  2. assistant id present (assistant mode) or model configured (direct-model mode)
//  3. project present, when RequireProject is set
func NewGuardChain(opts GuardOptions) GuardChain {
	chain := GuardChain{RequireAPIKey}
	if opts.Mode == config.ModeDirectModel {
		chain = append(chain, RequireModel(opts.Model))
	} else {
		chain = append(chain, RequireAssistantID)
	}
	if opts.RequireProject {
		chain = append(chain, RequireProject)
	}
	return chain
}

func configurationError(msg string) error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// RequireAPIKey rejects requests without OPENAI_API_KEY.
func RequireAPIKey(cfg RequestConfig) error {
	if cfg.APIKey == "" {
		return configurationError("Missing OPENAI_API_KEY (use a project key: sk-proj-...)")
	}
	return nil
}

// RequireAssistantID rejects requests with no assistant from env or query.
func RequireAssistantID(cfg RequestConfig) error {
	if cfg.AssistantID == "" {
		return configurationError("Missing ASSISTANT_ID (set env var or pass ?assistant_id=asst_...)")
	}
	return nil
}

// RequireProject rejects requests without OPENAI_PROJECT.
func RequireProject(cfg RequestConfig) error {
	if cfg.ProjectID == "" {
		return configurationError("Missing OPENAI_PROJECT (required when project scoping is enforced)")
	}
	return nil
}

// RequireModel rejects every request when direct-model mode has no model.
func RequireModel(model string) Guard {
	return func(RequestConfig) error {
		if model == "" {
			return configurationError("Missing model (set upstream.model or RELAY_MODEL)")
		}
		return nil
	}
}
