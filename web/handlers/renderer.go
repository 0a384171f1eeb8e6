package web

import (
	"html/template"
	"net/http"

	ds "github.com/starfederation/datastar-go/datastar"
)

type Renderer interface {
	Templates() *template.Template
	Handlers() map[string]func(w http.ResponseWriter, r *http.Request)
	Data() map[string]interface{}
	// OnTick patches whatever changed since the connection last saw it.
	OnTick(sse *ds.ServerSentEventGenerator, connectionID string) error
	// Forget drops what is tracked for a closed connection.
	Forget(connectionID string)
}
