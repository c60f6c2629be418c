package registrar

import (
	"fmt"
	"net/http"
)

// authTransport decorates outgoing backend calls: it attaches the bearer
// token when a session exists and, on a 401, performs exactly one
// refresh-and-replay for the originating request. A second 401 on the
// replayed request destroys the session instead of looping.
type authTransport struct {
	session *Session
	base    http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	token := t.session.Token()
	attempt := req.Clone(req.Context())
	if token != "" {
		attempt.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := base.RoundTrip(attempt)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		// Streaming body cannot be replayed; surface the 401 as-is.
		return resp, nil
	}
	drainBody(resp)

	newToken, err := t.session.refreshToken(req.Context(), token)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+newToken)

	resp, err = base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drainBody(resp)
		t.session.clear()
		return nil, fmt.Errorf("%w: request unauthorized after replay", ErrRefreshFailed)
	}
	return resp, nil
}
