package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Filesystem provides read_file, write_file and list_dir confined to a
// workspace root. Paths that resolve outside the root are rejected.
type Filesystem struct {
	root   string
	logger zerolog.Logger
}

// NewFilesystem creates the filesystem invoker rooted at the given
// workspace directory.
func NewFilesystem(root string, logger zerolog.Logger) (*Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	return &Filesystem{root: abs, logger: logger}, nil
}

func (f *Filesystem) Capability() Capability { return CapabilityFilesystem }

func (f *Filesystem) Actions() []string {
	return []string{"read_file", "write_file", "list_dir"}
}

func (f *Filesystem) Invoke(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	switch action {
	case "read_file":
		return f.readFile(args)
	case "write_file":
		return f.writeFile(args)
	case "list_dir":
		return f.listDir(args)
	default:
		return "", &UnsupportedActionError{Capability: CapabilityFilesystem, Action: action}
	}
}

func (f *Filesystem) readFile(args map[string]interface{}) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func (f *Filesystem) writeFile(args map[string]interface{}) (string, error) {
	path, err := f.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}
	content, ok := args["content"].(string)
	if !ok {
		return "", fmt.Errorf("argument %q is required", "content")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	f.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("wrote file")
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func (f *Filesystem) listDir(args map[string]interface{}) (string, error) {
	dir := stringArg(args, "path")
	if dir == "" {
		dir = "."
	}
	path, err := f.resolve(dir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", path, err)
	}

	var b strings.Builder
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return "(empty directory)", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// resolve joins a step-supplied path against the workspace root and
// verifies the result stays inside it.
func (f *Filesystem) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("argument %q is required", "path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.root, path)
	}
	path = filepath.Clean(path)
	if path != f.root && !strings.HasPrefix(path, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes workspace root %s", path, f.root)
	}
	return path, nil
}
