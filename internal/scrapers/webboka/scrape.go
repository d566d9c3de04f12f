package webboka

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"tvatt-backend/internal/components/metrics"
	"tvatt-backend/internal/laundry"
	"tvatt-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	groupIdPattern   = regexp.MustCompile(`ctl00_ContentPlaceHolder1_Repeater1_ctl(\d+)_MachineName`)
	machineIdPattern = regexp.MustCompile(`ctl(\d+)_Repeater2_ctl(\d+)_MaskGrpTitle`)
)

// Scrape fetches the machine status page using an existing session cookie. Errors are
// always *ScrapeError.
func (c *Client) Scrape(ctx context.Context, cookie string) (laundry.ScrapeResult, error) {
	ctx, span := tracer.Start(ctx, "client:Scrape")
	defer span.End()

	result, err := c.scrape(ctx, cookie)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		metrics.PortalScrapes.WithLabelValues("failed").Inc()
		c.tel.ReportWarning(report_client_scrape, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("groups", len(result)),
		attribute.Int("machines", result.MachineCount()),
	)
	metrics.PortalScrapes.WithLabelValues("success").Inc()
	return result, nil
}

func (c *Client) scrape(ctx context.Context, cookie string) (laundry.ScrapeResult, error) {
	// the status page only renders after the portal page has been visited in the session
	_, err := c.execute(
		c.http.R().
			SetContext(ctx).
			SetHeader("Cookie", cookie),
		http.MethodGet,
		portalPath,
	)
	if err != nil {
		return nil, scrapeError(fmt.Errorf("visit portal page: %w", err))
	}

	res, err := c.execute(
		c.http.R().
			SetContext(ctx).
			SetHeader("Cookie", cookie).
			SetHeader("Referer", c.endpoint(portalPath)),
		http.MethodGet,
		statusPath,
	)
	if err != nil {
		return nil, scrapeError(fmt.Errorf("fetch status page: %w", err))
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, scrapeError(fmt.Errorf("status page responded %s", res.Status()))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, scrapeError(fmt.Errorf("parse status page: %w", err))
	}
	if isLoginForm(doc) {
		return nil, scrapeError(fmt.Errorf("session rejected, got login form"))
	}
	if !isStatusPage(doc) {
		return nil, scrapeError(fmt.Errorf("status page markup not found"))
	}

	now := c.clock.Now()
	return ParseMachineGroups(doc, c.classifier, now), nil
}

func isLoginForm(doc *goquery.Document) bool {
	return doc.Find(`input[name$="tbPassword"]`).Length() > 0
}

// isStatusPage matches the MachineGroupStat page, including one that lists no groups.
func isStatusPage(doc *goquery.Document) bool {
	return doc.Find(`form[action*="MachineGroupStat"], [id^="ctl00_ContentPlaceHolder1"]`).Length() > 0
}

// ParseMachineGroups extracts every resource group with at least one machine from the
// MachineGroupStat page, in document order. It never returns nil.
func ParseMachineGroups(doc *goquery.Document, classifier laundry.Classifier, now time.Time) laundry.ScrapeResult {
	result := laundry.ScrapeResult{}

	doc.Find(`span[id$="MachineName"]`).Each(func(_ int, seed *goquery.Selection) {
		groupName := htmlutil.SelectionText(seed)
		if groupName == "" {
			return
		}
		groupMatch := groupIdPattern.FindStringSubmatch(seed.AttrOr("id", ""))
		if groupMatch == nil {
			return
		}

		machines := parseMachines(doc, groupMatch[1], classifier, now)
		if len(machines) == 0 {
			return
		}
		result = append(result, laundry.ResourceGroup{
			Name:     groupName,
			Machines: machines,
		})
	})

	return result
}

func parseMachines(doc *goquery.Document, group string, classifier laundry.Classifier, now time.Time) []laundry.Machine {
	selector := fmt.Sprintf(
		`span[id^="ctl00_ContentPlaceHolder1_Repeater1_ctl%s_Repeater2"][id$="MaskGrpTitle"]`,
		group,
	)

	var machines []laundry.Machine
	doc.Find(selector).Each(func(_ int, title *goquery.Selection) {
		name := htmlutil.SelectionText(title)
		if name == "" {
			return
		}

		status := ""
		match := machineIdPattern.FindStringSubmatch(title.AttrOr("id", ""))
		if match != nil {
			statusId := fmt.Sprintf(
				"ctl00_ContentPlaceHolder1_Repeater1_ctl%s_Repeater2_ctl%s_Repeater3_ctl01_LabelStatus",
				match[1], match[2],
			)
			status = strings.TrimSpace(doc.Find(fmt.Sprintf(`span[id="%s"]`, statusId)).Text())
		}

		machines = append(machines, classifier.Machine(name, status, now))
	})
	return machines
}
