package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/routemesh-go/internal/core/domain"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
)

// DefaultMaxFileSize caps the files FileService loads into memory.
const DefaultMaxFileSize = 16 << 20

// FileService serves files below a directory. The part of the resource
// after the mount point selects the file.
type FileService struct {
	mount        string
	root         string
	index        string
	cacheControl string
	maxSize      int64
	logger       *slog.Logger
}

func newFileService(resource string, opts Options, deps Deps) (httpserver.Handler, error) {
	dir := opts.String("directory", "")
	if dir == "" {
		return nil, errors.New("option directory is required")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &FileService{
		mount:        resource,
		root:         root,
		index:        opts.String("index", "index.html"),
		cacheControl: opts.String("cache_control", "max-age=0"),
		maxSize:      DefaultMaxFileSize,
		logger:       deps.logger().With("service", "file", "root", root),
	}, nil
}

// HandleRequest implements httpserver.Handler.
func (s *FileService) HandleRequest(req *domain.Request, conn *httpserver.Conn) error {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return httpserver.RespondMethodNotAllowed(req, conn, http.MethodGet, http.MethodHead)
	}

	rel := relativePath(req.Resource(), s.mount)
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return httpserver.RespondForbidden(req, conn, "path leaves the served directory")
		}
	}

	name := filepath.Join(s.root, filepath.FromSlash(path.Clean(rel)))
	st, err := os.Stat(name)
	if err == nil && st.IsDir() {
		name = filepath.Join(name, s.index)
		st, err = os.Stat(name)
		if err != nil && errors.Is(err, fs.ErrNotExist) {
			return httpserver.RespondForbidden(req, conn, "directory listing is disabled")
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return httpserver.RespondNotFound(req, conn)
	case errors.Is(err, fs.ErrPermission):
		return httpserver.RespondForbidden(req, conn, "permission denied")
	case err != nil:
		return err
	}
	if !st.Mode().IsRegular() {
		return httpserver.RespondForbidden(req, conn, "not a regular file")
	}
	if st.Size() > s.maxSize {
		return fmt.Errorf("file %s exceeds %d bytes", rel, s.maxSize)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	etag := fileETag(data)

	w := httpserver.NewResponseWriter(req, conn)
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Last-Modified", st.ModTime().UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", s.cacheControl)

	if etagMatches(req.Header.Get("If-None-Match"), etag) {
		w.SetStatus(http.StatusNotModified)
		return w.Send()
	}

	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		h.Set("Content-Type", ct)
	}
	w.Write(data)
	s.logger.Debug("file served", "path", rel, "size", len(data), "request_id", req.ID)
	return w.Send()
}

// fileETag derives a strong validator from the file contents.
func fileETag(data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf(`"%016x%016x"`, h1, h2)
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
