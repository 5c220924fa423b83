// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the postwriter document to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/models"
	"github.com/starford/postwriter/internal/serializer"
)

const formatURI = "postwriter://frontmatter-format"

// Server wraps the MCP server with postwriter tools.
type Server struct {
	mcp    *server.MCPServer
	store  *document.Store
	legacy bool
}

// New creates a new MCP server with all postwriter tools registered.
// legacy selects the unescaped markdown output by default.
func New(store *document.Store, legacy bool) *Server {
	s := &Server{store: store, legacy: legacy}

	s.mcp = server.NewMCPServer(
		"Postwriter",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	types := make([]string, len(models.FieldTypes))
	for i, t := range models.FieldTypes {
		types[i] = string(t)
	}

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Return the document: ordered frontmatter fields, markdown body, panel visibility and revision."),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("add_field",
		mcp.WithDescription("Append a frontmatter field. Without arguments it is an empty text field."),
		mcp.WithString("label", mcp.Description("Frontmatter key")),
		mcp.WithString("type", mcp.Description("Field type"), mcp.Enum(types...)),
		mcp.WithString("value", mcp.Description("Scalar value; booleans as true/false")),
		mcp.WithArray("items", mcp.Description("Items of a list field"), mcp.Items(map[string]any{"type": "string"})),
	), s.addField)

	s.mcp.AddTool(mcp.NewTool("update_field",
		mcp.WithDescription("Change the label, type or value of a field. Changing the type converts the current value."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Field id from get_document")),
		mcp.WithString("label", mcp.Description("New frontmatter key")),
		mcp.WithString("type", mcp.Description("New field type"), mcp.Enum(types...)),
		mcp.WithString("value", mcp.Description("New scalar value; booleans as true/false")),
		mcp.WithArray("items", mcp.Description("New items of a list field"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithBoolean("clear", mcp.Description("Set the value to null")),
	), s.updateField)

	s.mcp.AddTool(mcp.NewTool("remove_field",
		mcp.WithDescription("Remove a field. Remaining fields keep their relative order."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Field id")),
	), s.removeField)

	s.mcp.AddTool(mcp.NewTool("move_field",
		mcp.WithDescription("Move the source field to the position currently held by the target field."),
		mcp.WithNumber("source", mcp.Required(), mcp.Description("Id of the field to move")),
		mcp.WithNumber("target", mcp.Required(), mcp.Description("Id of the field whose slot receives it")),
	), s.moveField)

	s.mcp.AddTool(mcp.NewTool("set_body",
		mcp.WithDescription("Replace the markdown body that follows the frontmatter."),
		mcp.WithString("body", mcp.Required(), mcp.Description("Markdown text")),
	), s.setBody)

	s.mcp.AddTool(mcp.NewTool("render_markdown",
		mcp.WithDescription("Render the document as frontmatter followed by the body, exactly as copied to the clipboard."),
		mcp.WithBoolean("legacy", mcp.Description("Unescaped output of the original editor")),
	), s.renderMarkdown)

	s.mcp.AddTool(mcp.NewTool("export_fields",
		mcp.WithDescription("Export the fields as the JSON array accepted by import_fields."),
	), s.exportFields)

	s.mcp.AddTool(mcp.NewTool("import_fields",
		mcp.WithDescription("Replace all fields with an exported field list (JSON or YAML). "+
			"Read the postwriter://frontmatter-format resource for the accepted shapes."),
		mcp.WithString("data", mcp.Required(), mcp.Description("Exported field list")),
	), s.importFields)

	// Resource: payload formats.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Frontmatter Formats",
			mcp.WithResourceDescription("Clipboard payload, export and import formats of postwriter."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

// intArg reads a whole-number argument. JSON clients send numbers as float64.
func intArg(args map[string]any, key string) (int64, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("required argument %q not found", key)
	}
	switch n := raw.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		return n.Int64()
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

// fieldUpdate collects the optional label, type and value arguments.
func fieldUpdate(args map[string]any) (document.FieldUpdate, error) {
	var u document.FieldUpdate
	if v, ok := args["label"].(string); ok {
		u.Label = &v
	}
	if v, ok := args["type"].(string); ok {
		t, err := models.ParseFieldType(v)
		if err != nil {
			return u, err
		}
		u.Type = &t
	}

	switch {
	case args["clear"] == true:
		v := models.Null()
		u.Value = &v
	case args["items"] != nil:
		raw, ok := args["items"].([]any)
		if !ok {
			return u, errors.New("items must be an array of strings")
		}
		items := make([]string, len(raw))
		for i, it := range raw {
			str, ok := it.(string)
			if !ok {
				return u, errors.New("items must be an array of strings")
			}
			items[i] = str
		}
		v := models.List(items...)
		u.Value = &v
	case args["value"] != nil:
		str, ok := args["value"].(string)
		if !ok {
			return u, errors.New("value must be a string")
		}
		v := models.Scalar(str)
		u.Value = &v
	}
	return u, nil
}

func (s *Server) document() map[string]any {
	snap := s.store.Snapshot()
	return map[string]any{
		"fields":       snap.Fields,
		"body":         snap.Body,
		"fieldsHidden": snap.FieldsHidden,
		"revision":     s.store.Revision(),
	}
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.document())
}

func (s *Server) addField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := fieldUpdate(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.store.AddFieldWith(ctx, u)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(f)
}

func (s *Server) updateField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := intArg(args, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	u, err := fieldUpdate(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.store.UpdateField(ctx, id, u)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("field not found: %d", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(f)
}

func (s *Server) removeField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := intArg(req.GetArguments(), "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.store.RemoveField(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("no field with id %d", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %d", id)), nil
}

func (s *Server) moveField(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	source, err := intArg(args, "source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := intArg(args, "target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.store.MoveField(ctx, source, target); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.document())
}

func (s *Server) setBody(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.SetBody(ctx, body); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("body updated"), nil
}

func (s *Server) renderMarkdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	legacy := s.legacy
	if v, ok := req.GetArguments()["legacy"].(bool); ok {
		legacy = v
	}
	snap := s.store.Snapshot()
	return mcp.NewToolResultText(serializer.Markdown(snap.Fields, snap.Body, serializer.Options{Legacy: legacy})), nil
}

func (s *Server) exportFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := serializer.ExportJSON(s.store.Snapshot().Fields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) importFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.store.Import(ctx, []byte(data))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported: %d fields", n)), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     FormatDescription,
		},
	}, nil
}
