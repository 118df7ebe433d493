package main

import (
	"errors"
	"os"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/llm"
	"github.com/joseph-ayodele/parsemed/internal/llm/openai"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/mcp"
)

const version = "0.1.0"

func main() {
	fs := common.NewFlagSet("parsemed-mcp")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := common.LoadConfig(fs)
	if err != nil {
		os.Exit(2)
	}
	// stdout carries the protocol
	logger := common.NewLogger(os.Stderr, cfg.Log)

	var extractor llm.AttributeExtractor
	if cfg.LLM.APIKey != "" {
		extractor = openai.NewClient(openai.Config{
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
			Lenient:     true,
		}, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, extract_attributes is disabled")
	}

	converter := markdown.NewConverter(logger,
		markdown.WithEngines(markdown.DefaultEngines(logger)...),
		markdown.WithMaxBytes(cfg.Server.MaxUploadBytes),
	)
	srv, err := mcp.NewServer("parsemed", version, converter, extractor, logger)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		logger.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}
