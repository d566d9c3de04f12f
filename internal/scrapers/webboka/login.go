package webboka

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"tvatt-backend/internal/components/metrics"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	formEventTarget   = "__EVENTTARGET"
	formEventArgument = "__EVENTARGUMENT"
	formViewState     = "__VIEWSTATE"
	formViewStateGen  = "__VIEWSTATEGENERATOR"
	formEventValidate = "__EVENTVALIDATION"
	formUsername      = "ctl00$ContentPlaceHolder1$tbUsername"
	formPassword      = "ctl00$ContentPlaceHolder1$tbPassword"

	loginButtonTarget = "ctl00$ContentPlaceHolder1$btOK"
)

var sessionCookiePattern = regexp.MustCompile(`RCARDM5WebBoka=[^;]+`)

// Login performs the WebForms login handshake and returns the session cookie as
// "RCARDM5WebBoka=<value>". Errors are always *AuthError.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	cookie, err := c.login(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")

		if errors.Is(err, ErrLoginFailed) {
			metrics.PortalLogins.WithLabelValues("login_failed").Inc()
			c.tel.ReportWarning(report_client_login, err)
		} else {
			metrics.PortalLogins.WithLabelValues("backend_unavailable").Inc()
			c.tel.ReportBroken(report_client_login, err)
		}
		return "", err
	}

	metrics.PortalLogins.WithLabelValues("success").Inc()
	return cookie, nil
}

func (c *Client) login(ctx context.Context, username, password string) (string, error) {
	loginUrl := c.endpoint(loginPath)

	res, err := c.execute(c.http.R().SetContext(ctx), http.MethodGet, loginPath)
	if err != nil {
		return "", backendUnavailable(fmt.Errorf("fetch login page: %w", err))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return "", backendUnavailable(fmt.Errorf("parse login page: %w", err))
	}

	// the portal accepts blank state fields, so missing ones are not an error
	form := map[string]string{
		formEventTarget:   loginButtonTarget,
		formEventArgument: "",
		formViewState:     doc.Find("input#__VIEWSTATE").AttrOr("value", ""),
		formViewStateGen:  doc.Find("input#__VIEWSTATEGENERATOR").AttrOr("value", ""),
		formEventValidate: doc.Find("input#__EVENTVALIDATION").AttrOr("value", ""),
		formUsername:      username,
		formPassword:      password,
	}

	res, err = c.execute(
		c.http.R().
			SetContext(ctx).
			SetHeader("Referer", loginUrl).
			SetFormData(form),
		http.MethodPost,
		loginPath,
	)
	if err != nil {
		return "", backendUnavailable(fmt.Errorf("submit login form: %w", err))
	}
	if res.StatusCode() == http.StatusOK {
		// the form was rendered again, which is how the portal rejects credentials
		return "", loginFailed(fmt.Errorf("credentials rejected"))
	}

	cookie := sessionCookiePattern.FindString(strings.Join(res.Header().Values("Set-Cookie"), "\n"))
	if cookie == "" {
		return "", loginFailed(fmt.Errorf("no session cookie in %s response", res.Status()))
	}

	if res.StatusCode() == http.StatusFound {
		location := res.Header().Get("Location")
		if location != "" {
			c.completeLogin(ctx, loginUrl, location, cookie)
		}
	}

	return cookie, nil
}

// completeLogin follows the post-login redirect once so the portal finishes setting up the
// server side session. Failures are only reported.
func (c *Client) completeLogin(ctx context.Context, loginUrl, location, cookie string) {
	target, err := c.baseUrl.JoinPath(loginPath).Parse(location)
	if err != nil {
		c.tel.ReportWarning(report_client_login, fmt.Errorf("parse redirect %q: %w", location, err))
		return
	}
	if target.Host != c.baseUrl.Host {
		c.tel.ReportWarning(report_client_login, fmt.Errorf("refusing cross-host redirect to %s", target.Host))
		return
	}

	_, span := tracer.Start(ctx, "client:completeLogin")
	defer span.End()
	span.SetAttributes(attribute.String("redirect", target.String()))

	_, err = c.execute(
		c.http.R().
			SetContext(ctx).
			SetHeader("Cookie", cookie).
			SetHeader("Referer", loginUrl),
		http.MethodGet,
		target.String(),
	)
	if err != nil {
		span.RecordError(err)
		c.tel.ReportWarning(report_client_login, fmt.Errorf("follow login redirect: %w", err))
	}
}
