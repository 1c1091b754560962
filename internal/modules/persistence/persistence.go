package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrWrite wraps failures on the local side of a persist: creating, writing,
// syncing or closing the destination file.
var ErrWrite = errors.New("persistence: write failed")

// FilePersister saves downloaded thumbnails as <outputDir>/<recordID><ext>.
type FilePersister struct {
	outputDir string // Directory where files are saved
	logger    *zap.Logger

	dirOnce sync.Once
	dirErr  error
}

const defaultOutputDir = "./output" // Default directory for saving files

// New creates a new FilePersister instance with an optional custom directory.
//
// Parameters:
//   - logger: Logger for file-level events.
//   - outputDir: Optional variadic parameter for the directory path. Uses defaultOutputDir if not provided.
//
// Returns:
//   - A pointer to a new FilePersister instance.
func New(logger *zap.Logger, outputDir ...string) *FilePersister {
	dir := defaultOutputDir
	if len(outputDir) > 0 && outputDir[0] != "" {
		dir = outputDir[0]
	}
	return &FilePersister{outputDir: dir, logger: logger}
}

// Dir returns the output directory.
func (fp *FilePersister) Dir() string { return fp.outputDir }

// Path returns the destination path for a record. Path separators in the
// record id are replaced so every file lands directly in the output dir.
func (fp *FilePersister) Path(recordID, ext string) string {
	name := nameReplacer.Replace(recordID) + ext
	if name == "." || name == ".." || name == "" {
		name = "_" + name
	}
	return filepath.Join(fp.outputDir, name)
}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_")

// EnsureDir creates the output directory if it is absent. Only the first call
// touches the filesystem; later calls return the first result.
func (fp *FilePersister) EnsureDir() error {
	fp.dirOnce.Do(func() {
		if err := os.MkdirAll(fp.outputDir, 0755); err != nil {
			fp.dirErr = fmt.Errorf("create output dir %s: %w", fp.outputDir, err)
			return
		}
		fp.logger.Debug("output directory ready", zap.String("dir", fp.outputDir))
	})
	return fp.dirErr
}

// Persist streams body into the record's destination file, creating or
// overwriting it. It returns the path only once the file has been synced and
// closed. On any error the partial file is removed.
//
// Errors from reading body are returned unwrapped so the caller can tell a
// broken source from a local write failure (which wraps ErrWrite).
//
// Parameters:
//   - recordID: Record identifier used as the file's base name.
//   - ext: Extension, including the leading dot, or "".
//   - body: Source of the file content.
//
// Returns:
//   - The written path, or an error.
func (fp *FilePersister) Persist(recordID, ext string, body io.Reader) (string, error) {
	path := fp.Path(recordID, ext)

	fp.logger.Debug("persisting file", zap.String("filepath", path))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrWrite, path, err)
	}

	if _, err := io.Copy(fileWriter{f}, readerOnly{body}); err != nil {
		f.Close()
		fp.discard(path)
		var we *writeError
		if errors.As(err, &we) {
			return "", fmt.Errorf("%w: %s: %v", ErrWrite, path, we.err)
		}
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fp.discard(path)
		return "", fmt.Errorf("%w: sync %s: %v", ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		fp.discard(path)
		return "", fmt.Errorf("%w: close %s: %v", ErrWrite, path, err)
	}
	return path, nil
}

func (fp *FilePersister) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fp.logger.Warn("remove partial file failed",
			zap.String("filepath", path),
			zap.Error(err))
	}
}

// readerOnly and fileWriter hide WriterTo/ReaderFrom so io.Copy goes
// through fileWriter.Write and write errors stay distinguishable from read
// errors.
type readerOnly struct{ io.Reader }

type fileWriter struct{ f *os.File }

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
