package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const indexFile = "index.html"

// staticFileServer serves the built dashboard from a directory. Paths that
// do not name a file fall back to index.html so client-side routes resolve.
type staticFileServer struct {
	log  logrus.FieldLogger
	root string
}

func newStaticFileServer(log logrus.FieldLogger, dir string) *staticFileServer {
	return &staticFileServer{
		log:  log.WithField("component", "static-file-server"),
		root: filepath.Clean(dir),
	}
}

func (f *staticFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Cleaning against "/" strips any traversal before the join.
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name != "" {
		full := filepath.Join(f.root, filepath.FromSlash(name))

		if strings.HasPrefix(full, f.root+string(filepath.Separator)) {
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				http.ServeFile(w, r, full)

				return
			}
		}
	}

	index := filepath.Join(f.root, indexFile)
	if _, err := os.Stat(index); err != nil {
		f.log.WithError(err).Debug("Dashboard index not found")
		http.NotFound(w, r)

		return
	}

	http.ServeFile(w, r, index)
}
