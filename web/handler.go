package web

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// Handler serves a read-only browser over the transcript files under a
// recordings root.
type Handler struct {
	root   string
	logger *log.Logger
}

func NewHandler(root string, logger *log.Logger) *Handler {
	return &Handler{root: root, logger: logger}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleIndex)
	r.Get("/view", h.handleView)
	return r
}

type transcriptFile struct {
	Name     string
	Guild    string
	Size     int64
	Modified time.Time
}

func (h *Handler) listTranscripts() ([]transcriptFile, error) {
	var files []transcriptFile
	err := filepath.WalkDir(h.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}
		rel, err := filepath.Rel(h.root, path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, transcriptFile{
			Name:     rel,
			Guild:    filepath.Dir(rel),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Transcripts</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-100">
    <div class="container mx-auto px-4 py-8">
        <h1 class="text-3xl font-bold mb-6">Transcripts</h1>
        <table class="min-w-full bg-white shadow rounded">
            <tr class="text-left border-b">
                <th class="p-3">Guild</th>
                <th class="p-3">File</th>
                <th class="p-3">Modified</th>
                <th class="p-3">Size</th>
            </tr>
            {{range .}}
            <tr class="border-b hover:bg-gray-50">
                <td class="p-3">{{.Guild}}</td>
                <td class="p-3"><a class="text-blue-600" href="/view?f={{.Name}}">{{.Name}}</a></td>
                <td class="p-3">{{.Modified.Format "2006-01-02 15:04:05"}}</td>
                <td class="p-3">{{.Size}}</td>
            </tr>
            {{else}}
            <tr><td class="p-3" colspan="4">No transcripts yet.</td></tr>
            {{end}}
        </table>
    </div>
</body>
</html>`))

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	files, err := h.listTranscripts()
	if err != nil {
		h.logger.Error("failed to list transcripts", "error", err.Error())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := indexTemplate.Execute(w, files); err != nil {
		h.logger.Error("failed to render index", "error", err.Error())
	}
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("f")
	path := filepath.Join(h.root, filepath.Clean("/"+name))

	data, err := os.ReadFile(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}
