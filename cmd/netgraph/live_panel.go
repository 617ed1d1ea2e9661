package main

import (
	"net/http"
	"sync"

	"github.com/rendis/netgraph/internal/panel"
)

// livePanel serves the current panel and remembers the import query it was
// built with. A SIGHUP that changes the query installs a new panel while
// requests already in flight finish on the old one.
type livePanel struct {
	mu      sync.RWMutex
	handler http.Handler
	query   string
}

func newLivePanel(srv *panel.PanelServer, query string) *livePanel {
	return &livePanel{handler: srv.Handler(), query: query}
}

func (p *livePanel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	h := p.handler
	p.mu.RUnlock()
	h.ServeHTTP(w, r)
}

// Replace installs srv built for query.
func (p *livePanel) Replace(srv *panel.PanelServer, query string) {
	h := srv.Handler()
	p.mu.Lock()
	p.handler, p.query = h, query
	p.mu.Unlock()
}

// Query is the import query of the panel being served.
func (p *livePanel) Query() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.query
}
