package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/class-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.services.Attendance)
	facesHandler := handlers.NewFacesHandler(s.services.Enroll)
	classesHandler := handlers.NewClassesHandler(s.services.Students, s.services.Profiles)
	tilesHandler := handlers.NewTilesHandler(s.config.Pipeline.Layout)
	leaveHandler := handlers.NewLeaveHandler(s.services.Leave)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Classes
		r.Get("/classes/{classID}/students", classesHandler.Students)

		// Attendance
		r.Post("/attendance/auto", attendanceHandler.Auto)
		r.Post("/attendance/manual", attendanceHandler.Manual)
		r.Get("/attendance/sessions/{id}", attendanceHandler.Session)
		r.Get("/attendance/sessions/{id}/proof", attendanceHandler.Proof)

		// Leave requests
		r.Post("/leave", leaveHandler.Request)
		r.Get("/leave/{id}", leaveHandler.Get)
		r.Get("/teachers/{teacherID}/inbox", leaveHandler.Inbox)
		r.Post("/teachers/{teacherID}/inbox/approve", leaveHandler.Approve)
		r.Post("/teachers/{teacherID}/inbox/reject", leaveHandler.Reject)

		// Faces
		r.Post("/faces/enroll", facesHandler.Enroll)
		r.Get("/faces/profiles", facesHandler.ListProfiles)
		r.Delete("/faces/{regNo}", facesHandler.Delete)

		// Tiles
		r.Get("/tiles", tilesHandler.Plan)
	})
}
