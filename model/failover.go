package model

import (
	"context"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/logging"
)

// GenerateWithFailover calls primary and, if it fails, retries exactly once
// with secondary. It returns the generated text and the model that produced
// it. No failover happens when secondary is empty or equal to primary, or
// when the caller's context is done.
func GenerateWithFailover(ctx context.Context, client core.ModelClient, logger *logging.MeshLogger, primary, secondary string, prompt core.Prompt) (string, string, error) {
	text, err := client.Generate(ctx, primary, prompt)
	if err == nil {
		return text, primary, nil
	}
	if secondary == "" || secondary == primary || ctx.Err() != nil {
		return "", primary, err
	}
	if logger != nil {
		logger.Warn("Primary model failed, trying secondary", "primary", primary, "secondary", secondary, "error", err.Error())
	}
	text, err2 := client.Generate(ctx, secondary, prompt)
	if err2 != nil {
		return "", secondary, err2
	}
	return text, secondary, nil
}
