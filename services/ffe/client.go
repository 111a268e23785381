package ffe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DefaultBaseURL is the federation extranet.
const DefaultBaseURL = "https://extranet.escrime-ffe.fr"

// Client keeps an authenticated extranet session.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a Client for baseURL with its own cookie jar. Environment proxies
// are ignored.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Transport: transport, Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) endpoint(p string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + p
	return u.String()
}

// Login posts the credentials together with the hidden fields of the login page.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(""), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get login page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get login page: %s", resp.Status)
	}

	form, err := HiddenInputs(resp.Body)
	if err != nil {
		return fmt.Errorf("parse login page: %w", err)
	}
	form.Set("signin[username]", creds.User)
	form.Set("signin[password]", creds.Password)

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginResp, err := c.http.Do(post)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer loginResp.Body.Close()
	_, _ = io.Copy(io.Discard, loginResp.Body)
	if loginResp.StatusCode != http.StatusOK {
		return fmt.Errorf("login: %s", loginResp.Status)
	}
	return nil
}

// DownloadEntries fetches the entry list archive of a competition.
func (c *Client) DownloadEntries(ctx context.Context, competitionID string) ([]byte, error) {
	if strings.TrimSpace(competitionID) == "" {
		return nil, errors.New("competition id is required")
	}
	endpoint := c.endpoint("/competition/downloadInscrits") + "?" + url.Values{"id": {competitionID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download entries: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download entries: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// HiddenInputs collects name/value pairs of hidden inputs nested in forms.
func HiddenInputs(r io.Reader) (url.Values, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	values := url.Values{}
	var walk func(n *html.Node, inForm bool)
	walk = func(n *html.Node, inForm bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				inForm = true
			case "input":
				if inForm && strings.EqualFold(attr(n, "type"), "hidden") {
					if name := attr(n, "name"); name != "" {
						values.Set(name, attr(n, "value"))
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inForm)
		}
	}
	walk(doc, false)
	return values, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
