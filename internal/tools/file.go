package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aatumaykin/goclaw/internal/domain"
	"github.com/aatumaykin/goclaw/internal/workspace"
)

// ReadFileTool reads file contents from the workspace. All paths are
// resolved through the workspace so agents cannot read outside it.
type ReadFileTool struct {
	workspace *workspace.Workspace
}

// ReadFileArgs represents the arguments for the read_file tool.
type ReadFileArgs struct {
	Path   string `json:"path"`             // Path relative to the workspace
	Offset int    `json:"offset,omitempty"` // Line offset (0-based, defaults to 0)
	Limit  int    `json:"limit,omitempty"`  // Maximum number of lines to read (defaults to 2000)
}

// NewReadFileTool creates a new ReadFileTool instance.
func NewReadFileTool(ws *workspace.Workspace) *ReadFileTool {
	return &ReadFileTool{workspace: ws}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Description returns a description of what the tool does.
func (t *ReadFileTool) Description() string {
	return "Reads the contents of a file from the workspace. Returns file content with line numbers. Use this tool when you need to examine file contents."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read, relative to the workspace directory.",
			},
			"offset": map[string]any{
				"type":        "integer",
				"description": "The line number to start reading from (0-based). Defaults to 0.",
				"default":     0,
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "The maximum number of lines to read. Defaults to 2000.",
				"default":     2000,
			},
		},
		"required": []string{"path"},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *ReadFileTool) OutputSchema() map[string]any {
	return textOutputSchema()
}

// RiskProfiles returns the capability tags for this tool.
func (t *ReadFileTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskReadOnly}
}

// Execute reads the file content and returns it with line numbers.
func (t *ReadFileTool) Execute(_ context.Context, args string, _ Stream) (Result, error) {
	var fileArgs ReadFileArgs
	if err := ParseArgs(args, &fileArgs); err != nil {
		return Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	if fileArgs.Path == "" {
		return Fail("path is required"), nil
	}
	if fileArgs.Limit <= 0 {
		fileArgs.Limit = 2000
	}
	if fileArgs.Offset < 0 {
		fileArgs.Offset = 0
	}

	fullPath, err := t.workspace.ResolvePath(fileArgs.Path)
	if err != nil {
		return Fail(fmt.Sprintf("failed to resolve path: %v", err)), nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Fail(fmt.Sprintf("file not found: %s", fileArgs.Path)), nil
		}
		return Fail(fmt.Sprintf("failed to access file: %v", err)), nil
	}
	if info.IsDir() {
		return Fail(fmt.Sprintf("path is a directory, not a file: %s", fileArgs.Path)), nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return Fail(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	lines := splitLines(string(content))

	if fileArgs.Offset >= len(lines) {
		return Ok(fmt.Sprintf("# File: %s\n# Offset %d is beyond file length (%d lines)\n",
			fileArgs.Path, fileArgs.Offset, len(lines))), nil
	}

	startLine := fileArgs.Offset
	endLine := startLine + fileArgs.Limit
	if endLine > len(lines) {
		endLine = len(lines)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# File: %s (lines %d-%d of %d)\n",
		fileArgs.Path, startLine+1, endLine, len(lines))
	for i, line := range lines[startLine:endLine] {
		fmt.Fprintf(&sb, "%06d| %s\n", startLine+i+1, line)
	}

	return Ok(sb.String()), nil
}

// WriteFileTool writes content to a file in the workspace.
type WriteFileTool struct {
	workspace *workspace.Workspace
}

// WriteFileArgs represents the arguments for the write_file tool.
type WriteFileArgs struct {
	Path    string `json:"path"`           // Path relative to the workspace
	Content string `json:"content"`        // Content to write
	Mode    string `json:"mode,omitempty"` // create (default), append, overwrite
}

// NewWriteFileTool creates a new WriteFileTool instance.
func NewWriteFileTool(ws *workspace.Workspace) *WriteFileTool {
	return &WriteFileTool{workspace: ws}
}

// Name returns the tool name.
func (t *WriteFileTool) Name() string {
	return "write_file"
}

// Description returns a description of what the tool does.
func (t *WriteFileTool) Description() string {
	return "Writes content to a file in the workspace. Supports creating new files, appending to existing files, or overwriting files. Creates parent directories if they don't exist."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to write, relative to the workspace directory.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file.",
			},
			"mode": map[string]any{
				"type":        "string",
				"description": "Write mode: 'create' (fails if file exists), 'append' (append to existing file), 'overwrite' (replace file content). Defaults to 'create'.",
				"enum":        []string{"create", "append", "overwrite"},
				"default":     "create",
			},
		},
		"required": []string{"path", "content"},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *WriteFileTool) OutputSchema() map[string]any {
	return textOutputSchema()
}

// RiskProfiles returns the capability tags for this tool.
func (t *WriteFileTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskWriteFiles}
}

// Execute writes content to a file.
func (t *WriteFileTool) Execute(_ context.Context, args string, stream Stream) (Result, error) {
	var fileArgs WriteFileArgs
	if err := ParseArgs(args, &fileArgs); err != nil {
		return Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	if fileArgs.Path == "" {
		return Fail("path is required"), nil
	}
	if fileArgs.Content == "" {
		return Fail("content is required"), nil
	}
	if fileArgs.Mode == "" {
		fileArgs.Mode = "create"
	}

	fullPath, err := t.workspace.ResolvePath(fileArgs.Path)
	if err != nil {
		return Fail(fmt.Sprintf("failed to resolve path: %v", err)), nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return Fail(fmt.Sprintf("failed to create parent directories: %v", err)), nil
	}

	_, err = os.Stat(fullPath)
	fileExists := err == nil

	var file *os.File
	switch fileArgs.Mode {
	case "create":
		if fileExists {
			return Fail(fmt.Sprintf("file already exists and mode is 'create': %s", fileArgs.Path)), nil
		}
		file, err = os.Create(fullPath)
	case "append":
		if !fileExists {
			return Fail(fmt.Sprintf("file does not exist and mode is 'append': %s", fileArgs.Path)), nil
		}
		file, err = os.OpenFile(fullPath, os.O_WRONLY|os.O_APPEND, 0644)
	case "overwrite":
		file, err = os.Create(fullPath)
	default:
		return Fail(fmt.Sprintf("invalid mode '%s', must be one of: create, append, overwrite", fileArgs.Mode)), nil
	}
	if err != nil {
		return Fail(fmt.Sprintf("failed to open file: %v", err)), nil
	}
	defer file.Close()

	if _, err := file.WriteString(fileArgs.Content); err != nil {
		return Fail(fmt.Sprintf("failed to write content: %v", err)), nil
	}
	if err := file.Sync(); err != nil {
		return Fail(fmt.Sprintf("failed to sync file: %v", err)), nil
	}

	if stream != nil {
		stream.Artifact(fileArgs.Path)
	}

	return Ok(fmt.Sprintf("Successfully wrote %d bytes to %s", len(fileArgs.Content), fileArgs.Path)), nil
}

// ListDirTool lists files and directories in a workspace directory.
type ListDirTool struct {
	workspace *workspace.Workspace
}

// ListDirArgs represents the arguments for the list_dir tool.
type ListDirArgs struct {
	Path          string `json:"path"`                     // Path relative to the workspace
	Recursive     bool   `json:"recursive,omitempty"`      // List recursively (default: false)
	IncludeHidden bool   `json:"include_hidden,omitempty"` // Include hidden entries (default: false)
}

// NewListDirTool creates a new ListDirTool instance.
func NewListDirTool(ws *workspace.Workspace) *ListDirTool {
	return &ListDirTool{workspace: ws}
}

// Name returns the tool name.
func (t *ListDirTool) Name() string {
	return "list_dir"
}

// Description returns a description of what the tool does.
func (t *ListDirTool) Description() string {
	return "Lists the contents of a directory in the workspace. Can list recursively and optionally include hidden files."
}

// InputSchema returns the JSON Schema for the tool's input.
func (t *ListDirTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the directory to list, relative to the workspace directory. Use '.' for the workspace root.",
			},
			"recursive": map[string]any{
				"type":        "boolean",
				"description": "Whether to list directory contents recursively.",
				"default":     false,
			},
			"include_hidden": map[string]any{
				"type":        "boolean",
				"description": "Whether to include hidden files and directories (those starting with '.').",
				"default":     false,
			},
		},
		"required": []string{"path"},
	}
}

// OutputSchema returns the JSON Schema for the tool's output.
func (t *ListDirTool) OutputSchema() map[string]any {
	return textOutputSchema()
}

// RiskProfiles returns the capability tags for this tool.
func (t *ListDirTool) RiskProfiles() []domain.RiskProfile {
	return []domain.RiskProfile{domain.RiskReadOnly}
}

// Execute lists directory contents.
func (t *ListDirTool) Execute(_ context.Context, args string, _ Stream) (Result, error) {
	var dirArgs ListDirArgs
	if err := ParseArgs(args, &dirArgs); err != nil {
		return Fail(fmt.Sprintf("failed to parse arguments: %v", err)), nil
	}

	if dirArgs.Path == "" {
		return Fail("path is required"), nil
	}

	fullPath, err := t.workspace.ResolvePath(dirArgs.Path)
	if err != nil {
		return Fail(fmt.Sprintf("failed to resolve path: %v", err)), nil
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Fail(fmt.Sprintf("directory not found: %s", dirArgs.Path)), nil
		}
		return Fail(fmt.Sprintf("failed to access directory: %v", err)), nil
	}
	if !info.IsDir() {
		return Fail(fmt.Sprintf("path is not a directory: %s", dirArgs.Path)), nil
	}

	var entries []string
	if dirArgs.Recursive {
		entries, err = t.listRecursive(fullPath, dirArgs.IncludeHidden)
	} else {
		entries, err = t.listFlat(fullPath, dirArgs.IncludeHidden)
	}
	if err != nil {
		return Fail(fmt.Sprintf("failed to list directory: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Directory: %s\n# %d items\n\n", dirArgs.Path, len(entries))
	for _, entry := range entries {
		sb.WriteString(entry)
		sb.WriteString("\n")
	}

	return Ok(sb.String()), nil
}

func (t *ListDirTool) listFlat(dirPath string, includeHidden bool) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var result []string
	for _, entry := range entries {
		if !includeHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		entryType := "FILE"
		if entry.IsDir() {
			entryType = "DIR "
		}
		result = append(result, fmt.Sprintf("%s %s", entryType, entry.Name()))
	}

	return result, nil
}

func (t *ListDirTool) listRecursive(dirPath string, includeHidden bool) ([]string, error) {
	var result []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(dirPath, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		if !includeHidden && strings.HasPrefix(filepath.Base(relPath), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entryType := "FILE"
		if info.IsDir() {
			entryType = "DIR "
		}
		result = append(result, fmt.Sprintf("%s %s", entryType, relPath))

		return nil
	})

	return result, err
}
