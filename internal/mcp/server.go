package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/llm"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

// Server exposes conversion, extraction and table derivation as MCP tools.
type Server struct {
	converter pipeline.Converter
	extractor llm.AttributeExtractor
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates the MCP server. extractor may be nil, in which case
// extract_attributes is not registered.
func NewServer(name, version string, converter pipeline.Converter, extractor llm.AttributeExtractor, logger *slog.Logger) (*Server, error) {
	if converter == nil {
		return nil, fmt.Errorf("converter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		converter: converter,
		extractor: extractor,
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_to_markdown",
		mcp.WithDescription("Convert a PDF file to markdown, optionally keeping only the TABLE 1 and TABLE 2 sections"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
		mcp.WithBoolean("tables_only",
			mcp.Description("Return only the TABLE 1 / TABLE 2 sections"),
		),
	), s.handlePDFToMarkdown)

	if s.extractor != nil {
		s.mcpServer.AddTool(mcp.NewTool(
			"extract_attributes",
			mcp.WithDescription("Extract a JSON attributes document from markdown with the language model"),
			mcp.WithString("markdown",
				mcp.Required(),
				mcp.Description("Markdown converted from a PDF"),
			),
			mcp.WithString("template_json",
				mcp.Description(`Optional template: {"attributes": [{"name": "...", "query": "..."}]}. Without it the tables are extracted`),
			),
		), s.handleExtractAttributes)
	}

	s.mcpServer.AddTool(mcp.NewTool(
		"derive_tables",
		mcp.WithDescription("Render every attribute of a JSON attributes document as a table"),
		mcp.WithString("json",
			mcp.Required(),
			mcp.Description("The attributes document, a JSON object"),
		),
	), s.handleDeriveTables)
}

func (s *Server) handlePDFToMarkdown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.converter.ConvertFile(ctx, path)
	if err != nil {
		s.logger.Warn("mcp.pdf_to_markdown.failed", "path", path, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	md := res.Markdown
	if request.GetBool("tables_only", false) {
		md, _ = markdown.TableSections(md)
	}
	s.logger.Info("mcp.pdf_to_markdown.ok", "path", path, "pages", res.Pages, "engine", res.Engine)
	return mcp.NewToolResultText(md), nil
}

func (s *Server) handleExtractAttributes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	md, err := request.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(md) == "" {
		return mcp.NewToolResultError("No markdown provided."), nil
	}

	req := llm.ExtractRequest{Markdown: md}
	if raw := strings.TrimSpace(request.GetString("template_json", "")); raw != "" {
		var body entity.TemplateJSON
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("template_json: %v", err)), nil
		}
		req.Template = templates.Normalize(body).Attributes
	}

	out, err := s.extractor.ExtractAttributes(ctx, req)
	if err != nil {
		s.logger.Warn("mcp.extract_attributes.failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := json.MarshalIndent(out.Document, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleDeriveTables(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := attributes.ParseDocument([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := json.MarshalIndent(attributes.NewWorkspace(doc).Views(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// Run serves the tools over stdin/stdout until the input closes.
func (s *Server) Run() error {
	s.logger.Info("mcp.stdio.start")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}
