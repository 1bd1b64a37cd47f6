package loopback

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/florianilch/tokenward/internal/session"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>
`))

type page struct {
	Title   string
	Message string
}

// newCallbackHandler serves the redirect URI. The first callback is delivered to results;
// later ones are answered but ignored.
func newCallbackHandler(results chan<- *session.AuthResult) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+CallbackPath, applyMiddlewares(callback(results),
		HideQuery,
		Logging(slog.Default()),
		Recovery,
	))
	return mux
}

func callback(results chan<- *session.AuthResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := parseCallback(r)

		select {
		case results <- result:
		default:
		}

		status := http.StatusOK
		p := page{Title: "Login complete", Message: "You can close this window and return to the terminal."}
		switch result.Type {
		case session.ResultError:
			status = http.StatusBadRequest
			p = page{Title: "Login failed", Message: result.ErrorDescription}
			if p.Message == "" {
				p.Message = result.Error
			}
		case session.ResultDismiss:
			status = http.StatusBadRequest
			p = page{Title: "Login aborted", Message: "The authorization response was incomplete."}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = pageTemplate.Execute(w, p)
	}
}

// parseCallback maps the authorization response to a result.
func parseCallback(r *http.Request) *session.AuthResult {
	q := callbackQuery(r)
	state := q.Get("state")

	if code := q.Get("error"); code != "" {
		return &session.AuthResult{
			Type:             session.ResultError,
			State:            state,
			Error:            code,
			ErrorDescription: q.Get("error_description"),
		}
	}
	if code := q.Get("code"); code != "" {
		return &session.AuthResult{Type: session.ResultSuccess, Code: code, State: state}
	}
	return &session.AuthResult{Type: session.ResultDismiss, State: state}
}
