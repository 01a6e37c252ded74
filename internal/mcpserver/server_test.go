package mcpserver

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/folio/internal/identity"
	"github.com/starford/folio/internal/links"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/profile"
	"github.com/starford/folio/internal/publish"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/testutil"
	"github.com/starford/folio/internal/upload"
	"github.com/starford/folio/internal/vault"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	_, store := testutil.TestVault(t, map[string]string{
		"a.md": "---\nuid: ua\npublish-contexts: [blog]\n---\nAlpha links [[b]].\n",
		"b.md": "---\nuid: ub\npublish-contexts: [blog]\n---\nBravo links [[a]].\n",
		"c.md": "Unpublished [[a]].\n",
	})
	logger := testutil.Logger()
	v := vault.NewService(store, testutil.TestDB(t), parser.DefaultKeys(), logger)
	if err := v.Sync(); err != nil {
		t.Fatal(err)
	}
	profiles, err := profile.OpenStore(filepath.Join(t.TempDir(), "profiles.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := profiles.Put(profile.Profile{ID: "blog", Mechanism: profile.MechanismLocal}); err != nil {
		t.Fatal(err)
	}
	ids := identity.New(v, "uid", logger)
	pub := publish.New(v, profiles, ids, links.New(v, ids, nil, logger), storage.NewMemFS(), upload.NewFactory(nil, logger), publish.WithLogger(logger))
	return New(profiles, pub)
}

// callTool invokes a handler directly; mcp-go has no in-process call helper.
func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_profiles":     srv.listProfiles,
		"publish_note":      srv.publishNote,
		"note_connections":  srv.noteConnections,
		"search_published":  srv.searchPublished,
		"get_note_contract": srv.getNoteContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListProfiles(t *testing.T) {
	srv := testServer(t)
	text := resultText(callTool(t, srv, "list_profiles", nil))
	if !strings.Contains(text, `"id": "blog"`) {
		t.Errorf("profiles = %q", text)
	}
}

func TestPublishAndSearch(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "publish_note", map[string]any{"profile": "blog", "path": "a.md", "mode": "connected"})
	if r.IsError {
		t.Fatalf("publish failed: %s", resultText(r))
	}
	if text := resultText(r); !strings.Contains(text, `"staged": 2`) {
		t.Errorf("report = %s", text)
	}

	r = callTool(t, srv, "search_published", map[string]any{"profile": "blog", "query": "bravo", "limit": 5})
	if text := resultText(r); r.IsError || !strings.Contains(text, `"uid": "ub"`) {
		t.Errorf("search = %s", text)
	}

	r = callTool(t, srv, "search_published", map[string]any{"profile": "blog", "query": "zulu"})
	if text := resultText(r); text != "no results" {
		t.Errorf("empty search = %q", text)
	}
}

func TestPublishNote_Errors(t *testing.T) {
	srv := testServer(t)
	cases := []map[string]any{
		{"path": "a.md"},
		{"profile": "blog", "path": "a.md", "mode": "sometimes"},
		{"profile": "blog", "path": "c.md"},
		{"profile": "nope", "path": "a.md"},
	}
	for _, args := range cases {
		if r := callTool(t, srv, "publish_note", args); !r.IsError {
			t.Errorf("publish_note(%v) succeeded: %s", args, resultText(r))
		}
	}
}

func TestNoteConnections(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "note_connections", map[string]any{"profile": "blog", "path": "a.md"})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, `"uid": "ub"`) || !strings.Contains(text, `"isBacklink": true`) {
		t.Errorf("connections = %s", text)
	}
	if strings.Contains(text, "c.md") {
		t.Errorf("unpublished note listed: %s", text)
	}
}

func TestGetNoteContract(t *testing.T) {
	srv := testServer(t)
	text := resultText(callTool(t, srv, "get_note_contract", nil))
	if !strings.Contains(text, "publish-contexts") {
		t.Errorf("contract missing publish-contexts: %q", text)
	}
}
