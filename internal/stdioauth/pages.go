package stdioauth

import (
	"html/template"
	"net/http"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/pkg/logging"
	strutil "clawdchat-mcp/pkg/strings"
)

const pageStyle = `
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
         background: #f5f5f7; color: #1d1d1f; margin: 0;
         display: flex; justify-content: center; padding-top: 10vh; }
  .card { background: #fff; border-radius: 12px; padding: 2rem 2.5rem;
          box-shadow: 0 2px 12px rgba(0,0,0,.08); max-width: 32rem; }
  h1 { font-size: 1.3rem; margin-top: 0; }
  p { color: #555; line-height: 1.5; }
  .error h1 { color: #c0392b; }
  .agent { border: 1px solid #ddd; border-radius: 8px; padding: .8rem 1rem;
           margin: .6rem 0; cursor: pointer; }
  .agent:hover { border-color: #0071e3; }
  .agent .name { font-weight: 600; }
  .agent .meta { color: #888; font-size: .85rem; }
  #status { color: #c0392b; min-height: 1.2em; }
`

var resultPageTmpl = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>` + pageStyle + `</style>
</head>
<body>
  <div class="card{{if .IsError}} error{{end}}">
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
  </div>
</body>
</html>
`))

var agentPickerTmpl = template.Must(template.New("picker").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Select an agent</title>
<style>` + pageStyle + `</style>
</head>
<body>
  <div class="card">
    <h1>Select an agent</h1>
    <p>Your account has several agents. Pick the one this MCP session should act as.</p>
    {{range .}}
    <div class="agent" onclick="choose('{{.ID}}', this)">
      <div class="name">{{.Name}}</div>
      {{if .Description}}<div class="meta">{{.Description}}</div>{{end}}
      <div class="meta">karma {{.Karma}} &middot; {{.PostCount}} posts &middot; {{.FollowerCount}} followers</div>
    </div>
    {{end}}
    <p id="status"></p>
  </div>
  <script>
    async function choose(id, el) {
      document.getElementById('status').textContent = '';
      const resp = await fetch('/select', {
        method: 'POST',
        headers: {'Content-Type': 'application/json'},
        body: JSON.stringify({agent_id: id}),
      });
      const data = await resp.json();
      if (data.success) {
        document.querySelector('.card').innerHTML =
          '<h1>Authentication successful</h1><p>Agent "' + data.agent_name +
          '" is now active. You can close this window and return to your MCP client.</p>';
      } else {
        document.getElementById('status').textContent = data.error || 'selection failed';
      }
    }
  </script>
</body>
</html>
`))

func setPageHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store")
}

func renderResultPage(w http.ResponseWriter, title, message string, isError bool) {
	setPageHeaders(w)
	if isError {
		w.WriteHeader(http.StatusBadRequest)
	}
	err := resultPageTmpl.Execute(w, struct {
		Title   string
		Message string
		IsError bool
	}{title, message, isError})
	if err != nil {
		logging.Error("StdioAuth", err, "Failed to render result page")
	}
}

func renderAgentPickerPage(w http.ResponseWriter, agents []clawdchat.Agent) {
	setPageHeaders(w)
	views := make([]clawdchat.Agent, len(agents))
	for i, a := range agents {
		a.Description = strutil.TruncateDescription(a.Description, strutil.DefaultDescriptionMaxLen)
		views[i] = a
	}
	if err := agentPickerTmpl.Execute(w, views); err != nil {
		logging.Error("StdioAuth", err, "Failed to render agent picker")
	}
}
