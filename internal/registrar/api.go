package registrar

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is a structured error response from the backend.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func decodeAPIError(resp *http.Response) *apiError {
	out := &apiError{Status: resp.StatusCode, Code: "UNKNOWN"}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		out.Code = body.Error
		out.Message = body.Message
		return out
	}
	out.Message = strings.TrimSpace(string(data))
	return out
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
