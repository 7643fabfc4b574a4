package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmw "github.com/cwrk-planet/spaces/internal/transport/http/middleware"
	"github.com/cwrk-planet/spaces/pkg/httputil"
)

type RouterDeps struct {
	Handler        *Handler
	Verifier       httpmw.TokenVerifier
	WS             http.HandlerFunc // nil disables the media hub
	AllowedOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// токен приходит в query, заголовки в браузерном ws не передать
	if d.WS != nil {
		r.Get("/ws/spaces/{id}", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Verifier))
		pr.Use(middlewareChi.Timeout(30 * time.Second))

		h := d.Handler
		pr.Route("/spaces", func(rs chi.Router) {
			rs.Post("/", h.CreateSpace)
			rs.Get("/", h.ListSpaces)

			rs.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetSpace)
				rr.Patch("/", h.PatchSpace)
				rr.Post("/join", h.JoinSpace)
				rr.Post("/leave", h.LeaveSpace)
				rr.Post("/speak", h.RequestToSpeak)
				rr.Post("/end", h.EndSpace)
				rr.Post("/join-requests/{userId}/approve", h.ApproveJoin)
				rr.Post("/join-requests/{userId}/reject", h.RejectJoin)
				rr.Post("/speak-requests/{userId}/approve", h.ApproveSpeak)
				rr.Post("/speak-requests/{userId}/reject", h.RejectSpeak)
				rr.Post("/participants/{userId}/mute", h.MuteParticipant)
				rr.Post("/participants/{userId}/ban", h.BanParticipant)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	return r
}
