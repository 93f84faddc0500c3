package delivery

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newEchoServer(t *testing.T, method, query, body *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*method = r.Method
		*query = r.URL.RawQuery
		*body = string(data)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":"Success"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}
