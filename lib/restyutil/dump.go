package restyutil

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const redacted = "<redacted>"

// Output receives one formatted request/response pair per call.
type Output interface {
	Write(id string, contents string)
}

// DumpMessages writes every completed exchange made by client to output, with cookies and
// password fields redacted. It is meant for debugging markup changes on the portal side.
func DumpMessages(client *resty.Client, output Output) {
	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		output.Write(id, FormatMessage(res))
		return nil
	})
}

var sensitiveHeaders = map[string]bool{
	"Cookie":        true,
	"Set-Cookie":    true,
	"Authorization": true,
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if sensitiveHeaders[http.CanonicalHeaderKey(k)] {
				v = redacted
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatForm(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range form[k] {
			if strings.Contains(strings.ToLower(k), "password") {
				v = redacted
			}
			fmt.Fprintf(&out, "%s=%s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request form
// 5: response status
// 6: response location, if redirected
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

// FormatMessage renders res and the request that produced it.
func FormatMessage(res *resty.Response) string {
	var requestHeaders http.Header
	if res.Request.RawRequest != nil {
		requestHeaders = res.Request.RawRequest.Header
	} else {
		requestHeaders = res.Request.Header
	}

	location := ""
	if res.RawResponse != nil {
		if redirected, err := res.RawResponse.Location(); err == nil {
			location = redirected.String()
		}
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		formatHeaders(requestHeaders),
		formatForm(res.Request.FormData),

		res.Status(), location,
		formatHeaders(res.Header()),
		res.String(),
	)
}
