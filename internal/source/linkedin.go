package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/config"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

const (
	linkedinVoyagerBase = "https://www.linkedin.com/voyager/api"

	updateV2Type = "com.linkedin.voyager.feed.render.UpdateV2"
)

// LinkedInClient wraps the LinkedIn Voyager feed API for tracked company
// pages. Voyager timestamps are relative ("5d ago"), so every parsed posted_at
// is flagged approximate and excluded from checkpoint math.
type LinkedInClient struct {
	httpClient   *http.Client
	cfg          config.LinkedInConfig
	requestDelay time.Duration
	logger       *zap.Logger

	// company slug -> Voyager numeric id, resolved lazily and memoized
	companyIDs map[string]string
}

// NewLinkedInClient creates a LinkedIn client. The li_at session cookie is
// required; JSESSIONID doubles as the CSRF token.
func NewLinkedInClient(cfg config.LinkedInConfig) (*LinkedInClient, error) {
	if cfg.LiAt == "" || cfg.JSessionID == "" {
		return nil, fmt.Errorf("linkedin li_at and jsessionid are required")
	}

	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	return &LinkedInClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		cfg:          cfg,
		requestDelay: delay,
		logger:       logging.GetLogger().With(zap.String("component", "linkedin-client")),
		companyIDs:   make(map[string]string),
	}, nil
}

// Platform returns the platform identifier for posts from this adapter.
func (c *LinkedInClient) Platform() string {
	return models.PlatformLinkedIn
}

func (c *LinkedInClient) buildHeaders(req *http.Request) {
	csrf := strings.Trim(c.cfg.JSessionID, `"`)
	userAgent := c.cfg.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	}

	req.Header.Set("Accept", "application/vnd.linkedin.normalized+json+2.1")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("csrf-token", csrf)
	req.Header.Set("x-restli-protocol-version", "2.0.0")
	req.AddCookie(&http.Cookie{Name: "li_at", Value: c.cfg.LiAt})
	req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: c.cfg.JSessionID})
}

func (c *LinkedInClient) get(ctx context.Context, rawURL string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.buildHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return payload, nil
}

// lookupCompanyID resolves a company page slug (e.g. "acme-corp") to its
// numeric Voyager id, memoizing the result for the life of the client.
func (c *LinkedInClient) lookupCompanyID(ctx context.Context, slug string) (string, error) {
	if id, ok := c.companyIDs[slug]; ok {
		return id, nil
	}

	lookupURL := fmt.Sprintf("%s/organization/companies?q=universalName&universalName=%s",
		linkedinVoyagerBase, url.QueryEscape(slug))

	payload, err := c.get(ctx, lookupURL)
	if err != nil {
		return "", fmt.Errorf("company lookup failed for %q: %w", slug, err)
	}

	for _, elemRaw := range getSlice(payload, "included") {
		elem, ok := elemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		urn := getString(elem, "entityUrn")
		if idx := strings.LastIndex(urn, ":"); idx >= 0 && strings.Contains(urn, ":company:") {
			id := urn[idx+1:]
			c.companyIDs[slug] = id
			return id, nil
		}
	}
	return "", fmt.Errorf("company %q not found", slug)
}

// CompanyFeed fetches one page of a company's feed updates, keeping only
// posts whose text mentions one of the keywords (all posts when keywords is
// empty). start is the pagination offset; the returned cursor is the next
// offset as a decimal string, "" once the feed page came back short.
func (c *LinkedInClient) CompanyFeed(ctx context.Context, companySlug string, keywords []string, cursor string) (*SearchPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "linkedin.company_feed")
	defer span.End()

	// Resolves and memoizes the page id; also fails fast on unknown slugs
	if _, err := c.lookupCompanyID(ctx, companySlug); err != nil {
		return nil, err
	}

	start := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &start); err != nil {
			return nil, fmt.Errorf("bad feed cursor %q: %w", cursor, err)
		}
	}
	const count = 20

	feedURL := fmt.Sprintf("%s/feed/updatesV2?companyUniversalName=%s&count=%d&start=%d&moduleKey=member-share&q=companyFeedByUniversalName",
		linkedinVoyagerBase, url.QueryEscape(companySlug), count, start)

	payload, err := c.get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed for %q: %w", companySlug, err)
	}

	page := c.parseFeedResponse(payload, keywords)

	// A short page means the feed is exhausted
	seen := countUpdates(payload)
	if seen >= count {
		page.NextCursor = fmt.Sprintf("%d", start+count)
	}

	c.wait(ctx)

	return page, nil
}

func countUpdates(payload map[string]interface{}) int {
	n := 0
	for _, elemRaw := range getSlice(payload, "included") {
		if elem, ok := elemRaw.(map[string]interface{}); ok && getString(elem, "$type") == updateV2Type {
			n++
		}
	}
	return n
}

// parseFeedResponse walks the normalized "included" entities, canonicalizing
// UpdateV2 elements into RawPost records.
func (c *LinkedInClient) parseFeedResponse(payload map[string]interface{}, keywords []string) *SearchPage {
	page := &SearchPage{}
	now := time.Now().UTC()

	// socialDetail entities live alongside updates; index them by urn first
	socialByURN := make(map[string]map[string]interface{})
	for _, elemRaw := range getSlice(payload, "included") {
		elem, ok := elemRaw.(map[string]interface{})
		if !ok {
			continue
		}
		t := getString(elem, "$type")
		if strings.HasSuffix(t, "feed.SocialDetail") || strings.HasSuffix(t, "feed.shared.SocialDetail") {
			if urn := getString(elem, "urn"); urn != "" {
				socialByURN[urn] = elem
			}
		}
	}

	for _, elemRaw := range getSlice(payload, "included") {
		elem, ok := elemRaw.(map[string]interface{})
		if !ok || getString(elem, "$type") != updateV2Type {
			continue
		}

		post := c.canonicalizeUpdate(elem, socialByURN, now)
		if post == nil {
			continue
		}
		if len(keywords) > 0 && !matchesKeywords(post.FullText, keywords) {
			continue
		}
		page.Posts = append(page.Posts, post)
	}

	return page
}

// canonicalizeUpdate maps one Voyager UpdateV2 into the platform-agnostic
// RawPost shape.
func (c *LinkedInClient) canonicalizeUpdate(elem map[string]interface{}, socialByURN map[string]map[string]interface{}, now time.Time) *models.RawPost {
	urn := getString(elem, "entityUrn")
	postID := activityIDFromURN(urn)
	if postID == "" {
		return nil
	}

	post := &models.RawPost{
		Platform:  models.PlatformLinkedIn,
		PostID:    postID,
		ScrapedAt: now,
	}

	if commentary := getMap(elem, "commentary", "text"); commentary != nil {
		post.FullText = getString(commentary, "text")
	}

	if actor := getMap(elem, "actor"); actor != nil {
		if name := getMap(actor, "name"); name != nil {
			post.AuthorName = getString(name, "text")
		}
		if desc := getMap(actor, "description"); desc != nil {
			post.AuthorDescription = getString(desc, "text")
		}
		if nav := getMap(actor, "navigationContext"); nav != nil {
			post.AuthorProfileURL = getString(nav, "actionTarget")
		}
		// "5d ago" style; approximate only
		if sub := getMap(actor, "subDescription"); sub != nil {
			if ts, ok := ParseRelativeTime(getString(sub, "text"), now); ok {
				post.PostedAt = sql.NullTime{Time: ts, Valid: true}
				post.PostedAtApprox = true
			}
		}
	}

	if social := socialByURN[getString(elem, "socialDetail")]; social != nil {
		if counts := getMap(social, "totalSocialActivityCounts"); counts != nil {
			post.LikesCount = getInt64(counts, "numLikes")
			post.CommentsCount = getInt64(counts, "numComments")
			post.SharesCount = getInt64(counts, "numShares")
		}
	}

	post.PostURL = "https://www.linkedin.com/feed/update/urn:li:activity:" + postID

	if raw, err := json.Marshal(elem); err == nil {
		post.RawJSON = sql.NullString{String: string(raw), Valid: true}
	}

	return post
}

// activityIDFromURN pulls the numeric activity id out of urns like
// "urn:li:fs_updateV2:(urn:li:activity:712...,MEMBER_SHARES,EMPTY,DEFAULT,false)".
func activityIDFromURN(urn string) string {
	marker := "urn:li:activity:"
	idx := strings.Index(urn, marker)
	if idx < 0 {
		return ""
	}
	rest := urn[idx+len(marker):]
	end := strings.IndexAny(rest, ",)")
	if end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func matchesKeywords(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (c *LinkedInClient) wait(ctx context.Context) {
	timer := time.NewTimer(c.requestDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// LinkedInFeedAdapter presents a company feed through the generic search
// contract: the query is the company page slug, keywords narrow the results.
// The time window is ignored because Voyager exposes no server-side time
// filter; overlap is absorbed by natural-key dedup downstream.
type LinkedInFeedAdapter struct {
	Client   *LinkedInClient
	Keywords []string
}

// Platform returns the platform identifier for posts from this adapter.
func (a *LinkedInFeedAdapter) Platform() string {
	return models.PlatformLinkedIn
}

// Search fetches one feed page for the company named by query.
func (a *LinkedInFeedAdapter) Search(ctx context.Context, query string, _ TimeWindow, cursor string) (*SearchPage, error) {
	return a.Client.CompanyFeed(ctx, query, a.Keywords, cursor)
}
