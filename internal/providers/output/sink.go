package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Pericles001/Reverse-engineering-challenge/internal/logging"
	"github.com/Pericles001/Reverse-engineering-challenge/internal/session"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Format of the written document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Compression applied after encoding
type Compression string

const (
	CompressNone Compression = "none"
	CompressGzip Compression = "gzip"
	CompressZstd Compression = "zstd"
)

// Stdout is the path that streams to standard output.
const Stdout = "-"

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// ParseCompression accepts none, gzip/gz or zstd/zst.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressNone, nil
	case "gzip", "gz":
		return CompressGzip, nil
	case "zstd", "zst":
		return CompressZstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q", s)
	}
}

// FileSink writes the result to a file, atomically, or to stdout.
type FileSink struct {
	Path        string
	Format      Format
	Compression Compression
	Mode        os.FileMode

	stdout io.Writer
	logger *logging.Logger
}

// Option configures a FileSink
type Option func(*FileSink)

// WithFormat overrides the format inferred from the path
func WithFormat(f Format) Option {
	return func(s *FileSink) { s.Format = f }
}

// WithCompression overrides the compression inferred from the path
func WithCompression(c Compression) Option {
	return func(s *FileSink) { s.Compression = c }
}

// WithStdout replaces os.Stdout for the "-" path
func WithStdout(w io.Writer) Option {
	return func(s *FileSink) { s.stdout = w }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *FileSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileSink infers format and compression from the file name
// (users.yaml.gz → yaml, gzip) unless an option sets them.
func NewFileSink(path string, opts ...Option) *FileSink {
	s := &FileSink{
		Path:   path,
		Mode:   0o644,
		stdout: os.Stdout,
		logger: logging.NewNop(),
	}
	s.Format, s.Compression = infer(path)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func infer(path string) (Format, Compression) {
	name := strings.ToLower(filepath.Base(path))
	comp := CompressNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		comp = CompressGzip
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		comp = CompressZstd
		name = strings.TrimSuffix(name, ".zst")
	}
	format := FormatJSON
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		format = FormatYAML
	}
	return format, comp
}

// Persist encodes result and writes it. A file is replaced only once the
// complete document is on disk.
func (s *FileSink) Persist(ctx context.Context, result *session.Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(result, s.Format)
	if err != nil {
		return err
	}
	data, err = compress(data, s.Compression)
	if err != nil {
		return err
	}

	if s.Path == Stdout || s.Path == "" {
		if _, err := s.stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	if err := writeAtomic(s.Path, data, s.Mode); err != nil {
		return err
	}
	s.logger.Info("result written",
		zap.String("path", s.Path),
		zap.String("format", string(s.Format)),
		zap.String("compression", string(s.Compression)),
		zap.Int("bytes", len(data)),
		zap.Int("users", len(result.Users)))
	return nil
}

// jsonAPI matches encoding/json except that <, > and & are written as is;
// records are emitted as the API returned them.
var jsonAPI = sonic.Config{
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// Encode renders result as two-space indented JSON or as YAML.
func Encode(result *session.Result, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		data, err := jsonAPI.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func compress(data []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case CompressNone, "":
		return data, nil
	case CompressGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
	case CompressZstd:
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	tmpName = ""
	return nil
}
