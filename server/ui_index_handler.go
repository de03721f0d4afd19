package server

import (
	"net/http"
)

// IndexHandler renders the public home page
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParsePage("index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, r, tmpl, http.StatusOK, PageData{Title: "Home"})
	}
}
