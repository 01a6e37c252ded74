// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes folio publishing tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
)

const contractURI = "folio://note-format"

// Server wraps the MCP server with folio tools.
type Server struct {
	mcp       *server.MCPServer
	profiles  *profile.Store
	publisher *publish.Publisher
}

// New creates a new MCP server with all folio tools registered.
func New(profiles *profile.Store, publisher *publish.Publisher) *Server {
	s := &Server{profiles: profiles, publisher: publisher}

	s.mcp = server.NewMCPServer(
		"folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_profiles",
		mcp.WithDescription("List the configured publish profiles."),
	), s.listProfiles)

	s.mcp.AddTool(mcp.NewTool("publish_note",
		mcp.WithDescription("Publish a note to a profile. Mode individual publishes the note, "+
			"connected also publishes every note it links to or is linked from, "+
			"since-last and all publish the whole profile and ignore path."),
		mcp.WithString("profile", mcp.Required(), mcp.Description("Profile id")),
		mcp.WithString("path", mcp.Description("Vault path of the note (e.g. folder/note.md)")),
		mcp.WithString("mode", mcp.Description("individual (default), connected, since-last or all")),
	), s.publishNote)

	s.mcp.AddTool(mcp.NewTool("note_connections",
		mcp.WithDescription("List the notes a note links to and is linked from, limited to what the profile publishes."),
		mcp.WithString("profile", mcp.Required(), mcp.Description("Profile id")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault path of the note")),
	), s.noteConnections)

	s.mcp.AddTool(mcp.NewTool("search_published",
		mcp.WithDescription("Full-text search over the notes published to a profile."),
		mcp.WithString("profile", mcp.Required(), mcp.Description("Profile id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of hits (default 20)")),
	), s.searchPublished)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note format folio publishes from. "+
			"Call this before editing publish metadata on notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("Frontmatter fields and link syntax folio understands."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listProfiles(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.profiles.List())
}

func (s *Server) publishNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profileID, err := req.RequireString("profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := publish.ParseMode(req.GetString("mode", string(publish.ModeIndividual)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.publisher.Publish(ctx, publish.Request{ProfileID: profileID, Mode: mode, Path: req.GetString("path", "")})
	if err != nil {
		if rep != nil {
			out, _ := json.MarshalIndent(rep, "", "  ")
			return mcp.NewToolResultError(fmt.Sprintf("%v\n%s", err, out)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) noteConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profileID, err := req.RequireString("profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conns, err := s.publisher.Connections(ctx, profileID, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(conns) == 0 {
		return mcp.NewToolResultText("no connections found"), nil
	}
	return jsonResult(conns)
}

func (s *Server) searchPublished(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	profileID, err := req.RequireString("profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.publisher.Search(ctx, profileID, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	return jsonResult(hits)
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
