package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/httpx"
	"github.com/memberhub/backend/internal/middleware"
)

// Identity headers the upstream trusts. Client-supplied values are dropped.
const (
	HeaderAccountID   = "X-Account-Id"
	HeaderAccountRole = "X-Account-Role"
)

// New returns a reverse proxy to the data service. Requests the gate allowed
// are forwarded with the caller's identity attached.
func New(target string, log zerolog.Logger) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", target)
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Header.Del(HeaderAccountID)
			pr.Out.Header.Del(HeaderAccountRole)
			if acc := middleware.AccountFromCtx(pr.In.Context()); acc != nil {
				pr.Out.Header.Set(HeaderAccountID, acc.ID.String())
				pr.Out.Header.Set(HeaderAccountRole, acc.Role)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
			httpx.Error(w, http.StatusBadGateway, "upstream_unavailable", "data service unavailable")
		},
	}
	return rp, nil
}
