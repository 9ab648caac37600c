package api

import (
	"bytes"
	"errors"
	"net/http"
	"unsafe"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

var bearerScheme = []byte("bearer")

// bearerToken extracts the JWT from the first Authorization header. The
// scheme is matched case-insensitively. The result aliases the header value
// and must not be modified.
func bearerToken(header http.Header) ([]byte, error) {
	values := header.Values(echo.HeaderAuthorization)
	if len(values) == 0 {
		return nil, errMissingAuthorization
	}
	raw := bytes.TrimSpace(readOnlyBytes(values[0]))
	if len(raw) == 0 {
		return nil, errMissingAuthorization
	}
	scheme, token, ok := bytes.Cut(raw, []byte{' '})
	if !ok || !bytes.EqualFold(scheme, bearerScheme) {
		return nil, errBadAuthorization
	}
	token = bytes.TrimLeft(token, " ")
	// header.payload.signature
	if len(token) == 0 || bytes.Count(token, []byte{'.'}) != 2 {
		return nil, errBadAuthorization
	}
	return token, nil
}

func readOnlyBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func readOnlyString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
