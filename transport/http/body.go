package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/sepha/service"
)

// MaxBodySize caps authenticate and verify request bodies
const MaxBodySize = 1024

// ErrSecretTooLarge is returned by CheckBodyLimit
var ErrSecretTooLarge = errors.New("issued secrets would exceed the request body limit")

var (
	errBodyTooLarge         = errors.New("request body too large")
	errUnsupportedMediaType = errors.New("unsupported content type")
	errMissingToken         = errors.New("missing token")
)

var (
	jsonMediaType = contenttype.NewMediaType("application/json")
	formMediaType = contenttype.NewMediaType("application/x-www-form-urlencoded")
	textMediaType = contenttype.NewMediaType("text/plain")
)

// readToken extracts a token from the request body. Accepted forms are a
// JSON string, a JSON object holding the token under field, a urlencoded
// form with field, or the raw token as text/plain. Without a Content-Type
// the body is treated as JSON when it looks like JSON and as text otherwise.
func readToken(c *gin.Context, field string) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", errBodyTooLarge
		}
		return "", err
	}

	var token string
	if c.GetHeader("Content-Type") == "" {
		trimmed := strings.TrimSpace(string(body))
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, `"`) {
			token, err = jsonToken(body, field)
		} else {
			token = trimmed
		}
	} else {
		mediaType, mtErr := contenttype.GetMediaType(c.Request)
		switch {
		case mtErr != nil:
			return "", errUnsupportedMediaType
		case mediaType.Matches(jsonMediaType):
			token, err = jsonToken(body, field)
		case mediaType.Matches(formMediaType):
			var values url.Values
			values, err = url.ParseQuery(string(body))
			token = values.Get(field)
		case mediaType.Matches(textMediaType):
			token = strings.TrimSpace(string(body))
		default:
			return "", errUnsupportedMediaType
		}
	}
	if err != nil {
		return "", err
	}

	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func jsonToken(body []byte, field string) (string, error) {
	var token string
	if err := json.Unmarshal(body, &token); err == nil {
		return token, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", err
	}
	raw, ok := obj[field]
	if !ok {
		return "", errMissingToken
	}
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", err
	}
	return token, nil
}

// CheckBodyLimit fails when a secret issued by authService could be rejected
// by the authenticate body cap. A JSON object body adds the field name and
// quoting around the secret.
func CheckBodyLimit(authService *service.AuthService) error {
	size, err := authService.MaxSecretSize()
	if err != nil {
		return err
	}
	if wrapped := size + len(`{"secret":""}`); wrapped > MaxBodySize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrSecretTooLarge, wrapped, MaxBodySize)
	}
	return nil
}

// writeBodyError maps readToken errors to a status code
func writeBodyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, errUnsupportedMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, errMissingToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	}
}
