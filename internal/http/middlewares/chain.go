// Package middlewares contiene los middlewares HTTP de la API.
// Todos tienen la forma func(http.Handler) http.Handler y se montan con chi.
package middlewares

import "net/http"

// Middleware es un decorador de http.Handler.
type Middleware = func(http.Handler) http.Handler

// Chain aplica los middlewares en orden: el primero queda más afuera.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
