package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"podcast-digest-go/internal/config"
	"podcast-digest-go/internal/logger"
	"podcast-digest-go/internal/pipeline"
)

type commandContext struct {
	configFlag *string
	log        *logger.Logger

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, log: logger.New()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// orchestrator builds the pipeline; the caller must invoke the returned
// close function.
func (c *commandContext) orchestrator(ctx context.Context) (*pipeline.Orchestrator, func(context.Context) error, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return pipeline.Build(ctx, cfg, c.log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
