package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
	loginFormSel = "form#kc-form-login"
	loginFormID  = "kc-form-login"
)

var profileHrefRe = regexp.MustCompile(`/profile/(\d+)`)

// Client scrapes the portal over HTTP. Every Fetch uses a fresh cookie session.
type Client struct {
	baseURL string
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
}

// NewClient builds a Client. loc decides which semester the current date falls in.
func NewClient(baseURL string, timeout time.Duration, loc *time.Location, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		loc:     loc,
		now:     time.Now,
		log:     log.Named("portal"),
	}
}

// Fetch logs in and scrapes deadlines, full name and profile id.
// It returns ErrAuth for rejected credentials and ErrUnavailable for network
// and markup failures.
func (c *Client) Fetch(ctx context.Context, creds Credentials) (*Result, error) {
	session, err := c.newSession()
	if err != nil {
		return nil, err
	}

	if err := c.login(ctx, session, creds); err != nil {
		return nil, err
	}

	profile, err := c.getDocument(ctx, session, "/inside/profile")
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if name := strings.TrimSpace(profile.Find("h3.text-center").First().Text()); name != "" {
		result.FullName = &name
		result.ProfileID = c.findProfileID(ctx, session, name)
	}

	deadlines, err := c.extractDeadlines(ctx, session)
	if err != nil {
		return nil, err
	}
	result.Deadlines = deadlines

	c.log.Info("portal data fetched",
		zap.Int("deadlines", len(deadlines)),
		zap.Bool("profile_id_found", result.ProfileID != nil),
	)
	return result, nil
}

func (c *Client) newSession() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: c.timeout}, nil
}

func (c *Client) login(ctx context.Context, session *http.Client, creds Credentials) error {
	page, err := c.getDocument(ctx, session, "/inside/profile")
	if err != nil {
		return err
	}

	action, ok := page.Find(loginFormSel).Attr("action")
	if !ok || action == "" {
		return fmt.Errorf("%w: login form not found", ErrUnavailable)
	}
	actionURL, err := c.resolve(action)
	if err != nil {
		return fmt.Errorf("%w: login form action: %v", ErrUnavailable, err)
	}

	form := url.Values{}
	form.Set("username", creds.Login)
	form.Set("password", creds.Password.String())
	form.Set("credentialId", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: build login request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := session.Do(req)
	if err != nil {
		return fmt.Errorf("%w: post credentials: %v", ErrUnavailable, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	check, err := c.getBody(ctx, session, "/inside/profile")
	if err != nil {
		return err
	}
	if strings.Contains(check, loginFormID) {
		return ErrAuth
	}
	return nil
}

func (c *Client) findProfileID(ctx context.Context, session *http.Client, fullName string) *string {
	doc, err := c.getDocument(ctx, session, "/inside/student/groups")
	if err != nil {
		c.log.Warn("group page unavailable", zap.Error(err))
		return nil
	}

	var id *string
	doc.Find("table tbody tr td a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if !strings.Contains(strings.TrimSpace(link.Text()), fullName) {
			return true
		}
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		if m := profileHrefRe.FindStringSubmatch(href); m != nil {
			found := m[1]
			id = &found
			return false
		}
		return true
	})
	return id
}

func (c *Client) extractDeadlines(ctx context.Context, session *http.Client) ([]Deadline, error) {
	semester := CurrentSemester(c.now().In(c.loc))
	path := fmt.Sprintf("/inside/student/tasks/?semester=%d&subject=0&type=0&showStatus=1&perPage=200", semester.ID)

	doc, err := c.getDocument(ctx, session, path)
	if err != nil {
		return nil, err
	}

	var deadlines []Deadline
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		subject := row.Find("a.blue-link").First()
		task := row.Find("a.link-switch-blue").First()
		date := row.Find("td.text-center span.text-info, td.text-center span.text-warning").First()
		if subject.Length() == 0 || task.Length() == 0 || date.Length() == 0 {
			return
		}
		deadlines = append(deadlines, Deadline{
			Course:  strings.TrimSpace(subject.Text()),
			Task:    strings.TrimSpace(task.Text()),
			DueDate: strings.TrimSpace(date.Text()),
		})
	})
	return deadlines, nil
}

func (c *Client) getDocument(ctx context.Context, session *http.Client, path string) (*goquery.Document, error) {
	body, err := c.getBody(ctx, session, path)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrUnavailable, path, err)
	}
	return doc, nil
}

func (c *Client) getBody(ctx context.Context, session *http.Client, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := session.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: get %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: get %s: status %d", ErrUnavailable, path, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	return string(body), nil
}

func (c *Client) resolve(action string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(action)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
