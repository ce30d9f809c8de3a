package davclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/errandsync/errandsync/internal/httpclient"
	"github.com/errandsync/errandsync/internal/list"
	"github.com/errandsync/errandsync/internal/xml"
	"github.com/errandsync/errandsync/internal/xmltree"
	"github.com/google/uuid"
)

const defaultColor = "#ffffff"

// Client is a discovered CalDAV account. It owns its calendars and is not
// safe for concurrent use.
type Client struct {
	http   httpclient.HttpClientWrapper
	logger *slog.Logger

	username     string
	baseURL      string
	caldavURL    string
	principalURL string
	calendarsURL string

	calendars *list.List[*Calendar]
}

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *httpclient.Metrics
	wrapper    httpclient.HttpClientWrapper
}

// Option configures NewClient.
type Option func(*options)

// WithHTTPClient sets the underlying client. Its transport is wrapped with
// Basic auth; the caller's value is not modified.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *httpclient.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPClientWrapper replaces the whole transport stack.
func WithHTTPClientWrapper(w httpclient.HttpClientWrapper) Option {
	return func(o *options) { o.wrapper = w }
}

// NewClient runs autodiscovery, then resolves the principal and its
// calendar-home-set. If any step fails no client is returned.
func NewClient(ctx context.Context, baseURL, username, password string, opts ...Option) (*Client, error) {
	const op = "discover"

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, newError(op, baseURL, KindInvalid, "invalid base URL")
	}

	wrapper := o.wrapper
	if wrapper == nil {
		wrapper, err = newWrapper(base, username, password, o)
		if err != nil {
			return nil, newError(op, baseURL, KindInvalid, "failed to create HTTP client wrapper: %w", err)
		}
	}

	c := &Client{
		http:     wrapper,
		logger:   o.logger,
		username: username,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}

	caldavURL, err := c.Autodiscover(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	principalURL, err := c.findHref(ctx, "principal", caldavURL, xml.PropCurrentUserPrincipal)
	if err != nil {
		return nil, err
	}
	calendarsURL, err := c.findHref(ctx, "calendar-home-set", principalURL, xml.PropCalendarHomeSet)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(calendarsURL, "/") {
		calendarsURL += "/"
	}

	c.caldavURL = caldavURL
	c.principalURL = principalURL
	c.calendarsURL = calendarsURL
	c.calendars = list.New[*Calendar](nil)

	c.logger.Debug("discovery complete",
		"caldav_url", caldavURL,
		"principal_url", principalURL,
		"calendars_url", calendarsURL)
	return c, nil
}

func newWrapper(base *url.URL, username, password string, o options) (httpclient.HttpClientWrapper, error) {
	client := &http.Client{}
	if o.httpClient != nil {
		copied := *o.httpClient
		client = &copied
	}
	client.Transport = httpclient.NewBasicAuthTransport(username, password, client.Transport, o.logger)

	root := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	var wopts []httpclient.Option
	if o.metrics != nil {
		wopts = append(wopts, httpclient.WithMetrics(o.metrics))
	}
	return httpclient.NewHttpClientWrapper(client, root, o.logger, wopts...)
}

func (c *Client) Username() string     { return c.username }
func (c *Client) CalDAVURL() string    { return c.caldavURL }
func (c *Client) PrincipalURL() string { return c.principalURL }
func (c *Client) CalendarsURL() string { return c.calendarsURL }

// Autodiscover GETs base/.well-known/caldav following redirects and returns
// the effective URL.
func (c *Client) Autodiscover(ctx context.Context, base string) (string, error) {
	target := strings.TrimRight(base, "/") + "/.well-known/caldav"
	effective, err := c.http.Discover(ctx, target)
	if err != nil {
		c.logger.Debug("autodiscovery failed", "url", target, "error", err)
		return "", wrapErr("autodiscover", target, err)
	}
	return effective, nil
}

// findHref PROPFINDs prop at depth 0 and returns its href resolved against
// target.
func (c *Client) findHref(ctx context.Context, op, target string, prop xml.Prop) (string, error) {
	data, err := c.Propfind(ctx, target, 0, xml.PropfindBody(prop))
	if err != nil {
		return "", wrapErr(op, target, err)
	}
	root, err := xmltree.Parse(string(data))
	if err != nil {
		return "", wrapErr(op, target, err)
	}
	propNode, ok := root.Find(prop.Name).Get()
	if !ok {
		return "", newError(op, target, KindMalformed, "missing %s", prop.Name)
	}
	href, ok := propNode.Find("href").Get()
	if !ok || href.Text == "" {
		return "", newError(op, target, KindMalformed, "missing href in %s", prop.Name)
	}
	return resolveHref(target, href.Text)
}

// Propfind issues a PROPFIND and returns the raw multistatus body.
func (c *Client) Propfind(ctx context.Context, target string, depth int, body []byte) ([]byte, error) {
	header := http.Header{}
	header.Set("Depth", strconv.Itoa(depth))
	header.Set("Prefer", "return-minimal")
	header.Set("Content-Type", "application/xml; charset=utf-8")
	resp, err := c.http.Do(ctx, "PROPFIND", target, header, body)
	if err != nil {
		return nil, wrapErr("propfind", target, err)
	}
	return resp.Body, nil
}

// Report issues a REPORT with Depth 1.
func (c *Client) Report(ctx context.Context, target string, body []byte) ([]byte, error) {
	header := http.Header{}
	header.Set("Depth", "1")
	header.Set("Content-Type", "application/xml; charset=utf-8")
	resp, err := c.http.Do(ctx, "REPORT", target, header, body)
	if err != nil {
		return nil, wrapErr("report", target, err)
	}
	return resp.Body, nil
}

func (c *Client) Get(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.http.Do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, wrapErr("get", target, err)
	}
	return resp.Body, nil
}

func (c *Client) Delete(ctx context.Context, target string) error {
	_, err := c.http.Do(ctx, http.MethodDelete, target, nil, nil)
	return wrapErr("delete", target, err)
}

// Put uploads an iCalendar object.
func (c *Client) Put(ctx context.Context, target string, body []byte) error {
	header := http.Header{}
	header.Set("Content-Type", "text/calendar; charset=utf-8")
	_, err := c.http.Do(ctx, http.MethodPut, target, header, body)
	return wrapErr("put", target, err)
}

// Mkcalendar creates a calendar collection at target.
func (c *Client) Mkcalendar(ctx context.Context, target, name, color string, set ComponentSet) error {
	header := http.Header{}
	header.Set("Content-Type", "application/xml; charset=utf-8")
	_, err := c.http.Do(ctx, "MKCALENDAR", target, header, xml.MkcalendarBody(name, color, set.Names()...))
	return wrapErr("mkcalendar", target, err)
}

// Proppatch sets display name and color of a collection.
func (c *Client) Proppatch(ctx context.Context, target, name, color string) error {
	header := http.Header{}
	header.Set("Content-Type", "application/xml; charset=utf-8")
	_, err := c.http.Do(ctx, "PROPPATCH", target, header, xml.ProppatchBody(name, color))
	return wrapErr("proppatch", target, err)
}

// PullCalendars replaces the calendar list with the calendars under the
// home set that support at least one component in set.
func (c *Client) PullCalendars(ctx context.Context, set ComponentSet) error {
	const op = "pull calendars"
	c.logger.Debug("pulling calendars", "url", c.calendarsURL, "components", set.String())

	body := xml.PropfindBody(
		xml.PropResourceType,
		xml.PropDisplayName,
		xml.PropCalendarColor,
		xml.PropSupportedComponents,
	)
	data, err := c.Propfind(ctx, c.calendarsURL, 1, body)
	if err != nil {
		return wrapErr(op, c.calendarsURL, err)
	}
	responses, err := parseMultistatus(op, c.calendarsURL, data)
	if err != nil {
		return err
	}

	calendars := list.New[*Calendar](nil)
	for i, resp := range responses {
		// The first entry describes the home set itself.
		if i == 0 {
			continue
		}
		href, ok := resp.FindPath("href").Get()
		if !ok || href.Text == "" {
			return newError(op, c.calendarsURL, KindMalformed, "response %d has no href", i)
		}
		isCalendar, deleted := resourceType(resp)
		if !isCalendar || deleted {
			continue
		}
		components := supportedComponents(resp)
		if !components.Intersects(set) {
			continue
		}
		calURL, err := resolveHref(c.calendarsURL, href.Text)
		if err != nil {
			return newError(op, c.calendarsURL, KindMalformed, "bad href %q: %w", href.Text, err)
		}
		if !strings.HasSuffix(calURL, "/") {
			calURL += "/"
		}

		color := textOf(resp, "calendar-color")
		if color == "" {
			color = defaultColor
		}
		calendars.Append(&Calendar{
			client:     c,
			Name:       textOf(resp, "displayname"),
			Color:      color,
			URL:        calURL,
			UUID:       lastSegment(calURL),
			Components: components,
			events:     list.New[*Event](nil),
		})
	}

	c.calendars = calendars
	c.logger.Debug("pulled calendars", "count", calendars.Len())
	return nil
}

// CreateCalendar makes a new collection named by a fresh v4 UUID. The
// calendar is added to the client only when the server accepted it.
func (c *Client) CreateCalendar(ctx context.Context, name, color string, set ComponentSet) (*Calendar, error) {
	return c.CreateCalendarWithID(ctx, uuid.New().String(), name, color, set)
}

// CreateCalendarWithID is CreateCalendar with a caller-chosen collection
// name, used to keep a local list and its calendar under one identifier.
func (c *Client) CreateCalendarWithID(ctx context.Context, id, name, color string, set ComponentSet) (*Calendar, error) {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return nil, newError("create calendar", c.calendarsURL, KindInvalid, "invalid calendar id %q", id)
	}
	target := c.calendarsURL + id + "/"
	c.logger.Debug("creating calendar", "url", target, "name", name)

	if err := c.Mkcalendar(ctx, target, name, color, set); err != nil {
		return nil, err
	}
	cal := &Calendar{
		client:     c,
		Name:       name,
		Color:      color,
		URL:        target,
		UUID:       id,
		Components: set,
		events:     list.New[*Event](nil),
	}
	c.calendars.Append(cal)
	return cal, nil
}

// Calendars returns every known calendar, deleted ones included.
func (c *Client) Calendars() []*Calendar {
	return c.calendars.Items()
}

func (c *Client) ActiveCalendars() []*Calendar {
	return c.calendars.Filter(func(cal *Calendar) bool { return cal.state == Active })
}

func (c *Client) CalendarByUUID(id string) (*Calendar, bool) {
	i := c.calendars.Index(func(cal *Calendar) bool { return cal.UUID == id })
	return c.calendars.Get(i)
}

// FindCalendarByName returns the first active calendar with the display name.
func (c *Client) FindCalendarByName(name string) (*Calendar, bool) {
	i := c.calendars.Index(func(cal *Calendar) bool {
		return cal.state == Active && cal.Name == name
	})
	return c.calendars.Get(i)
}

func parseMultistatus(op, target string, data []byte) ([]*xmltree.Node, error) {
	root, err := xmltree.Parse(string(data))
	if err != nil {
		return nil, wrapErr(op, target, err)
	}
	ms, ok := root.Find("multistatus").Get()
	if !ok {
		return nil, newError(op, target, KindMalformed, "missing multistatus")
	}
	var out []*xmltree.Node
	for _, child := range ms.Children {
		if child.LocalName() == "response" {
			out = append(out, child)
		}
	}
	return out, nil
}

func resourceType(resp *xmltree.Node) (calendar, deleted bool) {
	rt, ok := resp.Find("resourcetype").Get()
	if !ok {
		return false, false
	}
	for _, child := range rt.Children {
		switch child.LocalName() {
		case "calendar":
			calendar = true
		case "deleted-calendar":
			deleted = true
		}
	}
	return calendar, deleted
}

// supportedComponents reads the component set. A missing set means the
// collection accepts every component type.
func supportedComponents(resp *xmltree.Node) ComponentSet {
	node, ok := resp.Find("supported-calendar-component-set").Get()
	if !ok {
		return CompAll
	}
	var names []string
	for _, comp := range node.Children {
		if name, ok := comp.Attr("name").Get(); ok {
			names = append(names, name)
		}
	}
	return ParseComponentSet(names...)
}

func textOf(n *xmltree.Node, tag string) string {
	if found, ok := n.Find(tag).Get(); ok {
		return found.Text
	}
	return ""
}

func resolveHref(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

func lastSegment(u string) string {
	parsed, err := url.Parse(u)
	p := u
	if err == nil {
		p = parsed.Path
	}
	return path.Base(strings.TrimSuffix(p, "/"))
}

// sameResource compares two URLs by path, ignoring a trailing slash.
func sameResource(a, b string) bool {
	pa, errA := url.Parse(a)
	pb, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return strings.TrimSuffix(pa.Path, "/") == strings.TrimSuffix(pb.Path, "/")
}
