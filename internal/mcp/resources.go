package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pagebuilder/internal/viewport"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pagesURI    = "pagebuilder://pages"
	pagePrefix  = "pagebuilder://page/"
	treeSuffix  = "/tree"
	registryURI = "pagebuilder://registry"
)

func (s *Server) registerResources() {
	// ── pagebuilder://pages ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pagesURI,
		"All Pages",
		mcp.WithMIMEType("application/json"),
	), s.handlePagesResource)

	// ── pagebuilder://registry ─────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		registryURI,
		"Component Types",
		mcp.WithMIMEType("application/json"),
	), s.handleRegistryResource)

	// ── pagebuilder://page/{pageId}/tree ───────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pagePrefix+"{pageId}"+treeSuffix,
			"Component Tree of a Page (current device)",
		),
		s.handlePageTreeResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	pages, err := s.sessions.Config().Pages.ListPages()
	if err != nil {
		return nil, err
	}

	type pageSummary struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Slug  string `json:"slug,omitempty"`
	}
	summaries := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		summaries = append(summaries, pageSummary{ID: p.ID, Title: p.Title, Slug: p.Slug})
	}
	return jsonContents(pagesURI, summaries)
}

func (s *Server) handleRegistryResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reg := s.sessions.Config().Registry
	defs := make([]any, 0)
	for _, t := range reg.Types() {
		if d, ok := reg.Lookup(t); ok {
			defs = append(defs, d)
		}
	}
	return jsonContents(registryURI, defs)
}

func (s *Server) handlePageTreeResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := pageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}
	sess, err := s.sessions.Open(pageID)
	if err != nil {
		return nil, err
	}
	st := sess.State()
	return jsonContents(uri, viewport.Decorate(st.Present, st.Editor, sess.Device()))
}

// pageIDFromURI extracts the id from "pagebuilder://page/{id}/tree".
func pageIDFromURI(uri string) string {
	if !strings.HasPrefix(uri, pagePrefix) || !strings.HasSuffix(uri, treeSuffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, pagePrefix), treeSuffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
