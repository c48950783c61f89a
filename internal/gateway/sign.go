package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

// signingTransport appends hmac_timestamp and hmac_sign to every request.
// The signature is a hex HMAC-SHA1 of the escaped path and query, keyed by
// the private token.
type signingTransport struct {
	token string
	base  http.RoundTripper
	now   func() time.Time
}

func newSigningTransport(token string, base http.RoundTripper) *signingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &signingTransport{token: token, base: base, now: time.Now}
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	signed := req.Clone(req.Context())
	u := *req.URL

	ts := "hmac_timestamp=" + strconv.FormatInt(t.now().Unix(), 10)
	if u.RawQuery == "" {
		u.RawQuery = ts
	} else {
		u.RawQuery += "&" + ts
	}
	u.RawQuery += "&hmac_sign=" + Sign(t.token, u.EscapedPath()+"?"+u.RawQuery)

	signed.URL = &u
	return t.base.RoundTrip(signed)
}

// Sign returns the hex HMAC-SHA1 of uri keyed by token.
func Sign(token, uri string) string {
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}
