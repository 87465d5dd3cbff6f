package app

import (
	"net/http"

	"github.com/yndnr/sockhttp/internal/server/endpoint"
)

// StaticHandler answers every request with the same response.
type StaticHandler struct {
	Status      int
	Body        string
	ContentType string
	Headers     map[string]string
}

// Handle writes the static response.
func (s StaticHandler) Handle(c *endpoint.Context) {
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.Response.Status = status
	for k, v := range s.Headers {
		c.Response.Header.Set(k, v)
	}
	if s.ContentType != "" {
		c.Response.Header.Set("Content-Type", s.ContentType)
	}
	c.Response.Body.WriteString(s.Body)
}
