package oauth

import (
	"html/template"
	"net/http"

	"clawdchat-mcp/internal/clawdchat"
	"clawdchat-mcp/pkg/logging"
	strutil "clawdchat-mcp/pkg/strings"
)

// Inline templates keep the binary self-contained. All dynamic values go
// through html/template escaping.

const pageStyle = `
body { font-family: -apple-system, "Segoe UI", sans-serif; background: #f5f6f8; margin: 0;
       display: flex; justify-content: center; align-items: center; min-height: 100vh; }
.card { background: #fff; border-radius: 12px; box-shadow: 0 2px 12px rgba(0,0,0,.08);
        padding: 2.5rem; max-width: 26rem; width: 100%; }
h1 { font-size: 1.3rem; margin: 0 0 1rem; }
p { color: #555; line-height: 1.5; }
input[type=tel] { width: 100%; box-sizing: border-box; padding: .7rem; font-size: 1rem;
        border: 1px solid #ccc; border-radius: 8px; margin-bottom: 1rem; }
button { width: 100%; padding: .7rem; font-size: 1rem; border: 0; border-radius: 8px;
         background: #2563eb; color: #fff; cursor: pointer; }
button:hover { background: #1d4ed8; }
a.google { display: block; text-align: center; margin-top: 1rem; padding: .7rem;
           border: 1px solid #ccc; border-radius: 8px; color: #333; text-decoration: none; }
.agent { border: 1px solid #ddd; border-radius: 8px; padding: 1rem; margin-bottom: .8rem;
         cursor: pointer; }
.agent:hover { border-color: #2563eb; }
.agent .name { font-weight: 600; }
.agent .meta { color: #777; font-size: .85rem; }
.error { color: #b91c1c; margin-top: 1rem; }
`

var loginPageTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sign in to ClawdChat</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>Sign in to ClawdChat</h1>
<p>Authorize this MCP client to act as one of your agents.</p>
<form id="login-form">
<input type="tel" id="phone" placeholder="Phone number" autocomplete="tel" required>
<button type="submit">Sign in</button>
</form>
{{if .GoogleURL}}<a class="google" href="{{.GoogleURL}}">Continue with Google</a>{{end}}
<div class="error" id="error"></div>
<script>
const state = {{.State}};
document.getElementById("login-form").addEventListener("submit", async (e) => {
  e.preventDefault();
  const errEl = document.getElementById("error");
  errEl.textContent = "";
  const resp = await fetch("/auth/login/callback", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({phone: document.getElementById("phone").value, state: state}),
  });
  const data = await resp.json();
  if (data.redirect) {
    window.location = data.redirect;
  } else if (data.needs_reset) {
    if (confirm(data.message + "\n\nGenerate a new API key now?")) {
      const confirmResp = await fetch("/auth/select-agent", {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        body: JSON.stringify({state: state, agent_id: data.agent_id, agent_name: data.agent_name, confirm_reset: true}),
      });
      const confirmData = await confirmResp.json();
      if (confirmData.redirect) { window.location = confirmData.redirect; }
      else { errEl.textContent = confirmData.error || "Unknown error"; }
    }
  } else {
    errEl.textContent = data.error || "Unknown error";
  }
});
</script>
</div>
</body>
</html>
`))

var selectAgentTmpl = template.Must(template.New("select").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Choose an agent</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>Choose an agent</h1>
<p>Select which agent this MCP client should act as.</p>
{{range .Agents}}
<div class="agent" data-id="{{.ID}}" data-name="{{.Name}}">
<div class="name">{{.Name}}</div>
{{if .Description}}<div class="meta">{{.Description}}</div>{{end}}
<div class="meta">karma {{.Karma}} &middot; {{.PostCount}} posts &middot; {{.FollowerCount}} followers</div>
</div>
{{else}}
<p>No agents available for this account.</p>
{{end}}
<div class="error" id="error"></div>
<script>
const state = {{.State}};
async function choose(agentId, agentName, confirmReset) {
  const errEl = document.getElementById("error");
  errEl.textContent = "";
  const resp = await fetch("/auth/select-agent", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({state: state, agent_id: agentId, agent_name: agentName, confirm_reset: confirmReset}),
  });
  const data = await resp.json();
  if (data.redirect) {
    window.location = data.redirect;
  } else if (data.needs_reset) {
    if (confirm(data.message + "\n\nGenerate a new API key now?")) {
      await choose(agentId, agentName, true);
    }
  } else {
    errEl.textContent = data.error || "Unknown error";
  }
}
document.querySelectorAll(".agent").forEach((el) => {
  el.addEventListener("click", () => choose(el.dataset.id, el.dataset.name, false));
});
</script>
</div>
</body>
</html>
`))

var errorPageTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>
</body>
</html>
`))

var redirectPageTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url={{.URL}}">
<title>Redirecting</title>
<style>` + pageStyle + `</style>
</head>
<body>
<div class="card">
<h1>Signed in</h1>
<p>Redirecting back to your MCP client&hellip;</p>
</div>
</body>
</html>
`))

func setHTMLHeaders(w http.ResponseWriter) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// The pages run a small inline script, so script-src allows it.
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'; connect-src 'self'")
}

func renderLoginPage(w http.ResponseWriter, state, googleURL string) {
	setHTMLHeaders(w)
	err := loginPageTmpl.Execute(w, struct {
		State     string
		GoogleURL string
	}{state, googleURL})
	if err != nil {
		logging.Error("OAuth", err, "Failed to render login page")
	}
}

func renderSelectAgentPage(w http.ResponseWriter, state string, agents []clawdchat.Agent) {
	setHTMLHeaders(w)
	views := make([]clawdchat.Agent, len(agents))
	for i, a := range agents {
		a.Description = strutil.TruncateDescription(a.Description, strutil.DefaultDescriptionMaxLen)
		views[i] = a
	}
	err := selectAgentTmpl.Execute(w, struct {
		State  string
		Agents []clawdchat.Agent
	}{state, views})
	if err != nil {
		logging.Error("OAuth", err, "Failed to render agent selection page")
	}
}

func renderErrorPage(w http.ResponseWriter, status int, title, message string) {
	setHTMLHeaders(w)
	w.WriteHeader(status)
	err := errorPageTmpl.Execute(w, struct {
		Title   string
		Message string
	}{title, message})
	if err != nil {
		logging.Error("OAuth", err, "Failed to render error page")
	}
}

func renderRedirectPage(w http.ResponseWriter, url string) {
	setHTMLHeaders(w)
	err := redirectPageTmpl.Execute(w, struct{ URL string }{url})
	if err != nil {
		logging.Error("OAuth", err, "Failed to render redirect page")
	}
}
