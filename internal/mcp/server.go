package mcp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/unifind/internal/search"
	"github.com/Aman-CERP/unifind/internal/service"
	"github.com/Aman-CERP/unifind/internal/status"
	"github.com/Aman-CERP/unifind/internal/store"
	"github.com/Aman-CERP/unifind/pkg/version"
)

// MaxInlineSize is the largest text file the download tool returns inline.
const MaxInlineSize = 1024 * 1024

// Operations is the service surface the tools call.
type Operations interface {
	StartCrawl(ctx context.Context, ownerID string, roots ...string) (service.Accepted, error)
	GetStatus(ctx context.Context, ownerID string) (status.State, error)
	Summary(ctx context.Context, ownerID string) (map[store.StorageType]int, error)
	Search(ctx context.Context, ownerID string, q search.Query) (*search.Response, error)
	SyncAccount(ctx context.Context, ownerID, accountID, provider string) (service.Accepted, error)
	Open(ctx context.Context, ownerID, path string) (service.OpenAction, error)
	Download(ctx context.Context, ownerID, path string) (io.ReadCloser, service.DownloadInfo, error)
	ListAccounts(ctx context.Context, ownerID string) ([]service.Account, error)
}

// Server is the MCP server for unifind.
// It lets AI clients search and open the user's files across local disks
// and linked cloud accounts.
type Server struct {
	mcp      *mcp.Server
	ops      Operations
	identity service.Identity
	logger   *slog.Logger

	// downloadDir receives downloads that cannot be returned inline.
	downloadDir string
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Find files and folders by name across local disks, Google Drive and Dropbox. Matches name prefixes as you type and tolerates small typos. Results are paginated with limit and offset.",
	},
	{
		Name:        "start_crawl",
		Description: "Index the user's local directories in the background. Returns immediately; poll get_status to follow progress.",
	},
	{
		Name:        "get_status",
		Description: "Report local indexing progress (not_started, starting, in_progress, completed) and entry counts per source.",
	},
	{
		Name:        "sync_account",
		Description: "Refresh the index of one linked Google Drive or Dropbox account in the background.",
	},
	{
		Name:        "open",
		Description: "Reveal a local file in the file manager, or return the web URL of a cloud file. Takes a path returned by search.",
	},
	{
		Name:        "download",
		Description: "Fetch a file's content. Small text files are returned inline; other files are saved locally and their path returned.",
	},
	{
		Name:        "list_accounts",
		Description: "List the user's linked cloud accounts and when each was last synced.",
	},
}

// NewServer creates a new MCP server. downloadDir may be empty to use the
// system temp directory.
func NewServer(ops Operations, identity service.Identity, downloadDir string) (*Server, error) {
	if ops == nil {
		return nil, errors.New("operations are required")
	}
	if identity == nil {
		return nil, errors.New("identity is required")
	}
	if downloadDir == "" {
		downloadDir = filepath.Join(os.TempDir(), "unifind-downloads")
	}

	s := &Server{
		ops:         ops,
		identity:    identity,
		logger:      slog.Default(),
		downloadDir: downloadDir,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "unifind",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "unifind", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		return callWith(ctx, args, s.handleSearch)
	case "start_crawl":
		return callWith(ctx, args, s.handleStartCrawl)
	case "get_status":
		return callWith(ctx, args, s.handleGetStatus)
	case "sync_account":
		return callWith(ctx, args, s.handleSyncAccount)
	case "open":
		return callWith(ctx, args, s.handleOpen)
	case "download":
		return callWith(ctx, args, s.handleDownload)
	case "list_accounts":
		return callWith(ctx, args, s.handleListAccounts)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func callWith[In, Out any](ctx context.Context, args map[string]any, h func(context.Context, In) (Out, error)) (any, error) {
	var in In
	if len(args) > 0 {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
	}
	out, err := h(ctx, in)
	if err != nil {
		return nil, MapError(err)
	}
	return out, nil
}

// owner resolves the caller.
func (s *Server) owner(ctx context.Context) (string, error) {
	return s.identity.CurrentOwner(ctx)
}

// logCall logs a tool invocation and its outcome.
func (s *Server) logCall(tool, requestID string, start time.Time, err error, attrs ...slog.Attr) {
	attrs = append(attrs,
		slog.String("tool", tool),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "tool_failed", attrs...)
		return
	}
	s.logger.LogAttrs(context.Background(), slog.LevelInfo, "tool_completed", attrs...)
}

func (s *Server) handleSearch(ctx context.Context, in SearchInput) (SearchOutput, error) {
	resp, err := s.search(ctx, in)
	if err != nil {
		return SearchOutput{}, err
	}
	return toSearchOutput(resp), nil
}

// search validates the tool input and runs the query for the caller.
func (s *Server) search(ctx context.Context, in SearchInput) (resp *search.Response, err error) {
	start := time.Now()
	requestID := generateRequestID()
	defer func() {
		n := 0
		if resp != nil {
			n = len(resp.Results)
		}
		s.logCall("search", requestID, start, err, slog.Int("results", n))
	}()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	q := search.Query{
		Text:     in.Query,
		Limit:    clampLimit(in.Limit, search.DefaultLimit, 1, search.MaxLimit),
		Offset:   in.Offset,
		FileType: in.FileType,
	}
	if in.Service != "" {
		st, perr := store.ParseStorageType(in.Service)
		if perr != nil {
			return nil, NewInvalidParamsError("service must be local, google_drive or dropbox")
		}
		q.Service = st
	}

	return s.ops.Search(ctx, owner, q)
}

func toSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Results: make([]EntryOutput, 0, len(resp.Results)),
		Offset:  resp.Offset,
		Limit:   resp.Limit,
		HasMore: resp.HasMore,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ToEntryOutput(r))
	}
	return out
}

func (s *Server) handleStartCrawl(ctx context.Context, in StartCrawlInput) (AcceptedOutput, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return AcceptedOutput{}, err
	}
	accepted, err := s.ops.StartCrawl(ctx, owner, in.Roots...)
	if err != nil {
		return AcceptedOutput{}, err
	}
	s.logger.Info("tool_completed", slog.String("tool", "start_crawl"), slog.String("owner", owner))
	return AcceptedOutput{Status: accepted.Status, Message: accepted.Message}, nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ GetStatusInput) (StatusOutput, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return StatusOutput{}, err
	}
	st, err := s.ops.GetStatus(ctx, owner)
	if err != nil {
		return StatusOutput{}, err
	}
	counts, err := s.ops.Summary(ctx, owner)
	if err != nil {
		return StatusOutput{}, err
	}

	out := StatusOutput{
		Status:         string(st.Phase),
		Scanned:        st.Scanned,
		Added:          st.Added,
		ElapsedSeconds: int(st.Elapsed().Seconds()),
		LastError:      st.LastError,
		Entries:        make(map[string]int, len(counts)),
	}
	for t, n := range counts {
		out.Entries[t.String()] = n
	}
	return out, nil
}

func (s *Server) handleSyncAccount(ctx context.Context, in SyncAccountInput) (AcceptedOutput, error) {
	if in.AccountID == "" || in.Provider == "" {
		return AcceptedOutput{}, NewInvalidParamsError("account_id and provider are required")
	}
	owner, err := s.owner(ctx)
	if err != nil {
		return AcceptedOutput{}, err
	}
	accepted, err := s.ops.SyncAccount(ctx, owner, in.AccountID, in.Provider)
	if err != nil {
		return AcceptedOutput{}, err
	}
	return AcceptedOutput{Status: accepted.Status, Message: accepted.Message}, nil
}

func (s *Server) handleOpen(ctx context.Context, in PathInput) (OpenOutput, error) {
	if in.Path == "" {
		return OpenOutput{}, NewInvalidParamsError("path is required")
	}
	owner, err := s.owner(ctx)
	if err != nil {
		return OpenOutput{}, err
	}
	action, err := s.ops.Open(ctx, owner, in.Path)
	if err != nil {
		return OpenOutput{}, err
	}
	return OpenOutput{Action: action.Action, Path: action.Path, URL: action.URL}, nil
}

func (s *Server) handleDownload(ctx context.Context, in PathInput) (out DownloadOutput, err error) {
	start := time.Now()
	requestID := generateRequestID()
	defer func() { s.logCall("download", requestID, start, err, slog.String("path", in.Path)) }()

	if in.Path == "" {
		return out, NewInvalidParamsError("path is required")
	}
	owner, err := s.owner(ctx)
	if err != nil {
		return out, err
	}

	rc, info, err := s.ops.Download(ctx, owner, in.Path)
	if err != nil {
		return out, err
	}
	defer func() { _ = rc.Close() }()

	out = DownloadOutput{Name: info.Name, MimeType: info.MimeType, Size: info.Size}

	if mime, ok := TextMimeType(info.Name, info.MimeType); ok && info.Size <= MaxInlineSize {
		data, err := io.ReadAll(io.LimitReader(rc, MaxInlineSize+1))
		if err != nil {
			return out, fmt.Errorf("failed to read %s: %w", info.Name, err)
		}
		if len(data) <= MaxInlineSize {
			out.MimeType = mime
			out.Content = string(data)
			out.Size = int64(len(data))
			return out, nil
		}
		// Size was unknown and the file turned out large.
		return s.saveDownload(out, info, io.MultiReader(bytes.NewReader(data), rc))
	}

	if info.StorageType == store.StorageLocal {
		out.SavedPath = in.Path
		return out, nil
	}
	return s.saveDownload(out, info, rc)
}

// saveDownload copies r into the download directory.
func (s *Server) saveDownload(out DownloadOutput, info service.DownloadInfo, r io.Reader) (DownloadOutput, error) {
	if err := os.MkdirAll(s.downloadDir, 0700); err != nil {
		return out, fmt.Errorf("failed to create download directory: %w", err)
	}
	f, err := os.CreateTemp(s.downloadDir, "*-"+filepath.Base(info.Name))
	if err != nil {
		return out, fmt.Errorf("failed to create download file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return out, fmt.Errorf("failed to save %s: %w", info.Name, err)
	}
	out.Size = n
	out.SavedPath = f.Name()
	return out, nil
}

func (s *Server) handleListAccounts(ctx context.Context, _ ListAccountsInput) (AccountsOutput, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return AccountsOutput{}, err
	}
	accts, err := s.ops.ListAccounts(ctx, owner)
	if err != nil {
		return AccountsOutput{}, err
	}
	out := AccountsOutput{Accounts: make([]AccountOutput, 0, len(accts))}
	for _, a := range accts {
		out.Accounts = append(out.Accounts, AccountOutput{
			ID:         a.ID,
			Provider:   a.Provider.String(),
			Email:      a.Email,
			LastSynced: formatTime(a.LastSynced),
		})
	}
	return out, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("mcp_tools_registering")

	mcp.AddTool(s.mcp, tool("search"), s.mcpSearchHandler)
	mcp.AddTool(s.mcp, tool("start_crawl"), adapt(s.handleStartCrawl))
	mcp.AddTool(s.mcp, tool("get_status"), adapt(s.handleGetStatus))
	mcp.AddTool(s.mcp, tool("sync_account"), adapt(s.handleSyncAccount))
	mcp.AddTool(s.mcp, tool("open"), adapt(s.handleOpen))
	mcp.AddTool(s.mcp, tool("download"), adapt(s.handleDownload))
	mcp.AddTool(s.mcp, tool("list_accounts"), adapt(s.handleListAccounts))

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(tools)))
}

func tool(name string) *mcp.Tool {
	for _, t := range tools {
		if t.Name == name {
			return &mcp.Tool{Name: t.Name, Description: t.Description}
		}
	}
	panic("unknown tool " + name)
}

// adapt wraps a handler as an MCP SDK tool handler with structured output.
func adapt[In, Out any](h func(context.Context, In) (Out, error)) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		out, err := h(ctx, in)
		if err != nil {
			var zero Out
			return nil, zero, MapError(err)
		}
		return nil, out, nil
	}
}

// mcpSearchHandler returns markdown text alongside the structured results.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	resp, err := s.search(ctx, in)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(in.Query, resp)}},
	}, toSearchOutput(resp), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
