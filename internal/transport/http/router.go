package http

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"filedrop/internal/logging"
	"filedrop/internal/metrics"
)

// RouterOptions holds what the router serves besides the handler methods.
type RouterOptions struct {
	HLSDir string
	Assets fs.FS
}

// NewRouter configures HTTP routes, static UI and HLS serving.
func NewRouter(handler *Handler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware, handler.Session)

	r.HandleFunc("/files", handler.RequireAuth(handler.ListFiles)).Methods("GET")
	r.HandleFunc("/files/{filename}", handler.PublicFile).Methods("GET", "HEAD")
	r.HandleFunc("/download/{filename}", handler.RequireAuth(handler.Download)).Methods("GET")
	r.HandleFunc("/upload", handler.RequireAuth(handler.Upload)).Methods("POST")
	r.HandleFunc("/delete/{filename}", handler.RequireAuth(handler.Delete)).Methods("DELETE")

	r.HandleFunc("/auth-status", handler.AuthStatus).Methods("GET")
	r.HandleFunc("/logout", handler.Logout).Methods("GET")
	r.HandleFunc("/auth/{provider}", handler.providerRoute(handler.Login)).Methods("GET")
	r.HandleFunc("/auth/{provider}/callback", handler.providerRoute(handler.Callback)).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/healthz", handler.Health).Methods("GET")

	hls := http.StripPrefix("/hls/", http.FileServer(http.Dir(opts.HLSDir)))
	r.PathPrefix("/hls/").Handler(handler.RequireAuth(hls.ServeHTTP)).Methods("GET", "HEAD")

	if opts.Assets != nil {
		r.HandleFunc("/", handler.RequireAuth(func(w http.ResponseWriter, req *http.Request) {
			http.ServeFileFS(w, req, opts.Assets, "index.html")
		})).Methods("GET")
		assets := http.FileServerFS(opts.Assets)
		for _, name := range []string{"/player.html", "/app.js", "/style.css"} {
			r.HandleFunc(name, handler.RequireAuth(assets.ServeHTTP)).Methods("GET", "HEAD")
		}
	}
	return r
}

// Wrap applies the outer middleware chain: CORS, request logging and panic
// recovery.
func Wrap(router http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowCredentials: true,
	})
	return c.Handler(logging.Middleware(Recoverer(router)))
}

// providerRoute answers 404 for providers other than the configured one.
func (h *Handler) providerRoute(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["provider"] != h.auth.ProviderName() {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}
