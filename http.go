package drawrelay

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"
)

// HTTPRequestArgs is the parameters for a form POST.
type HTTPRequestArgs struct {
	URI string

	// Data is sent as an application/x-www-form-urlencoded body.
	Data map[string]string

	// If basic authentication is used
	Username string
	Password string
}

// HTTPRequestResult contains the meta information about the reply.
type HTTPRequestResult struct {
	Err        error
	StatusCode int
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// MakeHTTPRequest posts args.Data as a form to args.URI. The reply body is
// read and discarded.
func MakeHTTPRequest(args HTTPRequestArgs) HTTPRequestResult {
	var result HTTPRequestResult

	data := url.Values{}
	for name, value := range args.Data {
		data.Set(name, value)
	}

	req, err := http.NewRequest(http.MethodPost, args.URI, strings.NewReader(data.Encode()))
	if err != nil {
		result.Err = err
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if args.Username != "" {
		req.SetBasicAuth(args.Username, args.Password)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		result.Err = err
	}
	return result
}

// RecoverErrors will wrap an HTTP handler. When a panic occurs, it will
// print the stack to the log. Secondly, it will return the internal server error
// with the status header equal to the error string.
func RecoverErrors(fn http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if thing := recover(); thing != nil {
				code := http.StatusInternalServerError
				status := "Internal server error"
				switch v := thing.(type) {
				case HTTPError:
					code = v.StatusCode()
					status = v.Error()
				default:
					status = fmt.Sprintf("%v", thing)
					log.Printf("%v", thing)
					log.Println(string(debug.Stack()))
				}
				w.Header().Set("Status", status)
				w.WriteHeader(code)
			}
		}()

		fn.ServeHTTP(w, r)
	}
}

// HTTPError is an error carrying the status code to reply with.
type HTTPError interface {
	Error() string
	StatusCode() int
}

type httpError struct {
	status  int
	message string
}

func (h httpError) Error() string {
	return h.message
}

func (h httpError) StatusCode() int {
	return h.status
}

// HTTPPanic will cause a panic with an HTTPError. This is expected to be
// recovered at a higher level, for example using the RecoverErrors
// middleware so the error is returned to the client.
func HTTPPanic(status int, fmtStr string, args ...interface{}) HTTPError {
	panic(httpError{status, fmt.Sprintf(fmtStr, args...)})
}

// CORS wraps an HTTP request handler, adding cors headers for the allowed
// origin. An empty allowed origin reflects whatever origin the request has.
func CORS(allowed string, fn http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			announce := allowed
			if announce == "" {
				announce = origin
			}
			w.Header().Set("Access-Control-Allow-Origin", announce)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers",
				"Accept, Content-Type, Content-Length, Accept-Encoding")
			w.Header().Add("Vary", "Origin")
		}
		// Stop here if its Preflighted OPTIONS request
		if r.Method == "OPTIONS" {
			return
		}

		fn.ServeHTTP(w, r)
	}
}
