// Package responsewriter wraps the response writer of a request to record
// what the handler answered.
package responsewriter

import "net/http"

// Recorder records the status code and body size written through it.
type Recorder struct {
	http.ResponseWriter

	status  int
	written int64
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)

	return n, err
}

// Status returns the status code sent to the client. A handler that wrote
// nothing answered 200.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *Recorder) Written() int64 {
	return r.written
}

// Unwrap gives http.ResponseController access to the wrapped writer.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
