package server

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"net/http"

	"github.com/KaramelBytes/climalyzer/internal/dataset"
)

type pageData struct {
	Files    []string
	Actions  []string
	Selected string
	Action   string
	Error    string
	Report   string
	// Plot is a data URI.
	Plot template.URL
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Climalyzer</title>
<style>
body { font-family: sans-serif; margin: 2rem auto; max-width: 60rem; }
pre { background: #f4f4f4; padding: 1rem; overflow-x: auto; }
.error { color: #b00020; }
img { max-width: 100%; }
</style>
</head>
<body>
<h1>Climate data analysis</h1>
<form method="post" action="/analyze">
  <label>Data file
    <select name="selected_file">
    {{- range .Files}}
      <option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
    {{- end}}
    </select>
  </label>
  <label>Action
    <select name="action">
    {{- range .Actions}}
      <option value="{{.}}"{{if eq . $.Action}} selected{{end}}>{{.}}</option>
    {{- end}}
    </select>
  </label>
  <button type="submit">Run</button>
</form>
{{- if not .Files}}
<p>No CSV files found in the data directory.</p>
{{- end}}
{{- if .Error}}
<p class="error">{{.Error}}</p>
{{- end}}
{{- if .Report}}
<h2>Result</h2>
<pre>{{.Report}}</pre>
{{- end}}
{{- if .Plot}}
<img src="{{.Plot}}" alt="analysis chart">
{{- end}}
</body>
</html>
`))

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	files, err := dataset.ListFiles(s.cfg.DataDir)
	if err != nil {
		s.logger.Warn("list data files failed", "dir", s.cfg.DataDir, "error", err)
	}
	data.Files = files
	data.Actions = []string{"predict", "cluster", "anomalies", "all"}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render page failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w) //nolint:errcheck // best-effort response
}

func pngDataURI(png []byte) template.URL {
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}
