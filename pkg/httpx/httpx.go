package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

type Context struct {
	ResponseWriter http.ResponseWriter
	Request        *http.Request
	Params         httprouter.Params
}

// JSON writes v with the given status code.
func (c Context) JSON(code int, v interface{}) error {
	c.ResponseWriter.Header().Set("Content-Type", "application/json")
	c.ResponseWriter.WriteHeader(code)
	return json.NewEncoder(c.ResponseWriter).Encode(v)
}

// Blob writes b with the given content type.
func (c Context) Blob(contentType string, b []byte) error {
	c.ResponseWriter.Header().Set("Content-Type", contentType)
	c.ResponseWriter.Header().Set("Cache-Control", "no-store")
	_, err := c.ResponseWriter.Write(b)
	return err
}

type Router struct {
	*httprouter.Router
	errHandler func(http.ResponseWriter, string, int)
}

type ErrHTTPResponse struct {
	err  error
	code int
}

func (err ErrHTTPResponse) Error() string { return err.err.Error() }
func (err ErrHTTPResponse) Cause() error  { return err.err }
func (err ErrHTTPResponse) Code() int     { return err.code }

func ErrNotFound(err error) error   { return ErrHTTPResponse{err: err, code: http.StatusNotFound} }
func ErrBadRequest(err error) error { return ErrHTTPResponse{err: err, code: http.StatusBadRequest} }
func ErrBadGateway(err error) error { return ErrHTTPResponse{err: err, code: http.StatusBadGateway} }

// StatusCode returns the code carried by err, or 500.
func StatusCode(err error) int {
	var v ErrHTTPResponse
	if errors.As(err, &v) {
		return v.code
	}
	return http.StatusInternalServerError
}

func (r *Router) h(handler func(c Context) (err error)) httprouter.Handle {
	return func(rw http.ResponseWriter, req *http.Request, p httprouter.Params) {
		err := handler(Context{ResponseWriter: rw, Request: req, Params: p})
		if err == nil {
			return
		}
		code := StatusCode(err)
		if r.errHandler != nil {
			r.errHandler(rw, err.Error(), code)
			return
		}
		http.Error(rw, err.Error(), code)
	}
}

// ErrHandler replaces the plain text error response.
func (r *Router) ErrHandler(handle func(http.ResponseWriter, string, int)) {
	r.errHandler = handle
}

// JSONErrors writes errors as {"error": msg}.
func JSONErrors(rw http.ResponseWriter, msg string, code int) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}

func (r *Router) GET(path string, handle func(Context) error)  { r.Router.GET(path, r.h(handle)) }
func (r *Router) POST(path string, handle func(Context) error) { r.Router.POST(path, r.h(handle)) }
func (r *Router) HEAD(path string, handle func(Context) error) { r.Router.HEAD(path, r.h(handle)) }

func New() *Router {
	return &Router{
		Router: httprouter.New(),
	}
}
