package http

import (
	"net/http"

	"returnsdesk/labels"
	"returnsdesk/pipeline"
	"returnsdesk/returns"
)

// RegisterReturnsRoutes wires the intake pipeline and record surface.
func (s *Server) RegisterReturnsRoutes() {
	s.router.Post("/api/returns/scan", pipeline.ScanCommandHandler())
	s.router.Post("/api/returns", pipeline.SubmitReturnCommandHandler(s.DB, s.Store, s.UploadCfg))

	s.router.Get("/api/returns/{invoice}", returns.GetReturnQueryHandler(s.DB))
	s.router.Post("/api/returns/{invoice}/update", returns.UpdateReturnCommandHandler(s.DB))
	s.router.Get("/api/returns/{invoice}/label", labels.ReturnLabelQueryHandler(s.DB))

	if s.FilesRoot != "" {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(s.FilesRoot)))
		s.router.Get("/files/*", fileServer.ServeHTTP)
	}
}
