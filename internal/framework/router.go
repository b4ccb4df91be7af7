package framework

import (
	"net/http"
	"strings"
)

// Mount registers the root and collection endpoints on mux. Every request
// routed here carries the App and the resolved user in its context.
func (a *App) Mount(mux *http.ServeMux) {
	for _, e := range a.Endpoints {
		mux.Handle(pattern(e.Method, a.APIPrefix+e.Path), a.wrap(e.Handler))
	}
	for _, c := range a.Collections {
		for _, e := range c.Endpoints {
			mux.Handle(pattern(e.Method, a.APIPrefix+"/"+c.Slug+e.Path), a.wrap(e.Handler))
		}
	}
}

func (a *App) wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithApp(r.Context(), a)
		r = r.WithContext(ctx)
		if u := a.Authenticate(r); u != nil {
			r = r.WithContext(WithUser(ctx, u))
		}
		h.ServeHTTP(w, r)
	})
}

func pattern(method, path string) string {
	if method == "" {
		return path
	}
	return strings.ToUpper(method) + " " + path
}
