package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/config"
	"github.com/brandpulse/brandpulse/pkg/logging"
	"github.com/brandpulse/brandpulse/pkg/telemetry"
)

const (
	twitterSearchURL      = "https://x.com/i/api/graphql/bshMIjqDk8LTXTq4w91WKw/SearchTimeline"
	twitterTweetDetailURL = "https://x.com/i/api/graphql/nBS-WpgA6ZG0CyNHD517JQ/TweetDetail"

	// Twitter's own timestamp format, e.g. "Tue Dec 16 06:31:32 +0000 2025"
	twitterTimeLayout = "Mon Jan 2 15:04:05 -0700 2006"

	// Fallback public web bearer; overridable via config
	defaultBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	// Bound on ids carried in the scrape sidecar across processes
	scrapeStateMaxIDs = 200
)

// Feature flags the GraphQL endpoints require. Opaque, reverse-engineered,
// subject to change with the web client.
var twitterSearchFeatures = map[string]bool{
	"rweb_video_screen_enabled":                false,
	"profile_label_improvements_pcf_label_in_post_enabled":                    true,
	"responsive_web_profile_redirect_enabled":                                 false,
	"rweb_tipjar_consumption_enabled":                                         true,
	"verified_phone_label_enabled":                                            true,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"premium_content_api_read_enabled":                                        false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"responsive_web_grok_analyze_button_fetch_trends_enabled":                 false,
	"responsive_web_grok_analyze_post_followups_enabled":                      true,
	"responsive_web_jetfuel_frame":                                            true,
	"responsive_web_grok_share_attachment_enabled":                            true,
	"articles_preview_enabled":                                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"responsive_web_grok_show_grok_translated_post":                           false,
	"responsive_web_grok_analysis_button_from_backend":                        true,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_grok_image_annotation_enabled":                            true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

var twitterDetailFeatures = map[string]bool{
	"rweb_tipjar_consumption_enabled":                                         true,
	"responsive_web_graphql_exclude_directive_enabled":                        true,
	"verified_phone_label_enabled":                                            true,
	"creator_subscriptions_tweet_preview_api_enabled":                         true,
	"responsive_web_graphql_timeline_navigation_enabled":                      true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
	"communities_web_enable_tweet_community_results_fetch":                    true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                               true,
	"articles_preview_enabled":                                                true,
	"responsive_web_edit_tweet_api_enabled":                                   true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
	"view_counts_everywhere_api_enabled":                                      true,
	"longform_notetweets_consumption_enabled":                                 true,
	"responsive_web_twitter_article_tweet_consumption_enabled":                true,
	"tweet_awards_web_tipping_enabled":                                        false,
	"creator_subscriptions_quote_tweet_preview_enabled":                       false,
	"freedom_of_speech_not_reach_fetch_enabled":                               true,
	"standardized_nudges_misinfo":                                             true,
	"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
	"rweb_video_timestamps_enabled":                                           true,
	"longform_notetweets_rich_text_read_enabled":                              true,
	"longform_notetweets_inline_media_enabled":                                true,
	"responsive_web_enhance_cards_enabled":                                    false,
}

// TwitterClient wraps the Twitter/X GraphQL search and tweet-detail APIs.
type TwitterClient struct {
	httpClient   *http.Client
	cfg          config.TwitterConfig
	txID         *TransactionID
	state        StateStore   // nil disables the scrape sidecar
	prior        *ScrapeState // last persisted sidecar state
	requestDelay time.Duration
	logger       *zap.Logger
}

// NewTwitterClient creates a Twitter client. Missing credentials are a
// configuration error, caught before any pipeline state is touched. state may
// be nil when no cross-process scrape sidecar is wanted.
func NewTwitterClient(cfg config.TwitterConfig, txStore TokenStore, state StateStore) (*TwitterClient, error) {
	if cfg.AuthToken == "" || cfg.CSRFToken == "" {
		return nil, fmt.Errorf("twitter auth_token and csrf_token are required")
	}

	txID, err := NewTransactionID(txStore, cfg.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize transaction id: %w", err)
	}

	bearer := cfg.BearerToken
	if bearer == "" {
		bearer = defaultBearerToken
	}
	cfg.BearerToken = bearer

	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	logger := logging.GetLogger().With(zap.String("component", "twitter-client"))

	// Resume the cross-process sidecar; a corrupt file is not fatal
	var prior *ScrapeState
	if state != nil {
		prior, err = state.Load()
		if err != nil {
			logger.Warn("failed to load scrape state", zap.Error(err))
			prior = &ScrapeState{}
		} else if !prior.LastRun.IsZero() {
			logger.Info("resuming scrape state",
				zap.Time("last_run", prior.LastRun),
				zap.String("last_query", prior.LastQuery),
				zap.Int("known_ids", len(prior.LastProcessedIDs)))
		}
	}

	return &TwitterClient{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		cfg:          cfg,
		txID:         txID,
		state:        state,
		prior:        prior,
		requestDelay: delay,
		logger:       logger,
	}, nil
}

// recordScrapeState rewrites the cross-process sidecar after a unit of work,
// carrying forward ids seen by earlier runs of the same query. Best-effort: a
// sidecar write failure never fails the scrape.
func (c *TwitterClient) recordScrapeState(query string, posts []*models.RawPost) {
	if c.state == nil {
		return
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	if c.prior != nil && c.prior.LastQuery == query {
		ids = append(ids, c.prior.LastProcessedIDs...)
	}
	if len(ids) > scrapeStateMaxIDs {
		ids = ids[:scrapeStateMaxIDs]
	}
	next := &ScrapeState{
		LastProcessedIDs: ids,
		LastQuery:        query,
		LastRun:          time.Now().UTC(),
	}
	if err := c.state.Save(next); err != nil {
		c.logger.Warn("failed to persist scrape state", zap.Error(err))
		return
	}
	c.prior = next
}

// Platform returns the platform identifier for posts from this adapter.
func (c *TwitterClient) Platform() string {
	return models.PlatformTwitter
}

func (c *TwitterClient) buildHeaders(req *http.Request) error {
	tx, err := c.txID.Next()
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-GB,en-US;q=0.9,en;q=0.8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("authorization", "Bearer "+c.cfg.BearerToken)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-client-transaction-id", tx)
	req.Header.Set("x-csrf-token", c.cfg.CSRFToken)
	req.Header.Set("x-twitter-active-user", "yes")
	req.Header.Set("x-twitter-auth-type", "OAuth2Session")
	req.Header.Set("x-twitter-client-language", "en")
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: c.cfg.AuthToken})
	req.AddCookie(&http.Cookie{Name: "ct0", Value: c.cfg.CSRFToken})
	req.AddCookie(&http.Cookie{Name: "lang", Value: "en"})
	return nil
}

func (c *TwitterClient) get(ctx context.Context, rawURL string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if err := c.buildHeaders(req); err != nil {
		return nil, err
	}

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

// buildRawQuery appends second-granularity time filters to the search query.
func buildRawQuery(query string, window TimeWindow) string {
	raw := query
	if !window.End.IsZero() {
		raw += " until_time:" + strconv.FormatInt(window.End.Unix(), 10)
	}
	if !window.Start.IsZero() {
		raw += " since_time:" + strconv.FormatInt(window.Start.Unix(), 10)
	}
	return raw
}

// Search fetches one page of search results for the query and window,
// canonicalized into RawPost records. An empty cursor starts at the top;
// the returned cursor is "" once the timeline is exhausted.
func (c *TwitterClient) Search(ctx context.Context, query string, window TimeWindow, cursor string) (*SearchPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.search")
	defer span.End()

	variables := map[string]interface{}{
		"rawQuery":    buildRawQuery(query, window),
		"count":       20,
		"querySource": "typed_query",
		"product":     "Latest",
	}
	if cursor != "" {
		variables["cursor"] = cursor
	}

	varsJSON, _ := json.Marshal(variables)
	featJSON, _ := json.Marshal(twitterSearchFeatures)

	params := url.Values{}
	params.Set("variables", string(varsJSON))
	params.Set("features", string(featJSON))

	payload, err := c.get(ctx, twitterSearchURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("search failed for %q: %w", query, err)
	}

	page := parseSearchResponse(payload, query)
	c.recordScrapeState(query, page.Posts)

	// Client-side pacing between successive calls
	c.wait(ctx)

	return page, nil
}

// FetchConversation fetches the full thread for a tweet and returns it as a
// Conversation record. This is the expensive follow-up call: callers check
// conversation existence BEFORE invoking it.
func (c *TwitterClient) FetchConversation(ctx context.Context, tweetID string) (*models.Conversation, error) {
	ctx, span := telemetry.StartSpan(ctx, "twitter.tweet_detail")
	defer span.End()

	variables := map[string]interface{}{
		"focalTweetId":                           tweetID,
		"with_rux_injections":                    false,
		"includePromotedContent":                 false,
		"withCommunity":                          true,
		"withQuickPromoteEligibilityTweetFields": false,
		"withBirdwatchNotes":                     false,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}

	varsJSON, _ := json.Marshal(variables)
	featJSON, _ := json.Marshal(twitterDetailFeatures)

	params := url.Values{}
	params.Set("variables", string(varsJSON))
	params.Set("features", string(featJSON))

	payload, err := c.get(ctx, twitterTweetDetailURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("tweet detail failed for %s: %w", tweetID, err)
	}

	conv, err := parseConversationResponse(payload)
	if err != nil {
		return nil, err
	}

	c.wait(ctx)

	return conv, nil
}

func (c *TwitterClient) wait(ctx context.Context) {
	timer := time.NewTimer(c.requestDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// parseSearchResponse walks the timeline instructions, canonicalizing tweet
// entries and picking up the bottom cursor for pagination.
func parseSearchResponse(payload map[string]interface{}, query string) *SearchPage {
	page := &SearchPage{}

	timeline := getMap(payload, "data", "search_by_raw_query", "search_timeline", "timeline")
	if timeline == nil {
		return page
	}

	for _, instRaw := range getSlice(timeline, "instructions") {
		inst, ok := instRaw.(map[string]interface{})
		if !ok || getString(inst, "type") != "TimelineAddEntries" {
			continue
		}

		for _, entryRaw := range getSlice(inst, "entries") {
			entry, ok := entryRaw.(map[string]interface{})
			if !ok {
				continue
			}
			entryID := getString(entry, "entryId")

			if strings.HasPrefix(entryID, "cursor-bottom") {
				if content := getMap(entry, "content"); content != nil {
					page.NextCursor = getString(content, "value")
				}
				continue
			}
			if !strings.HasPrefix(entryID, "tweet-") {
				continue
			}

			result := getMap(entry, "content", "itemContent", "tweet_results", "result")
			if post := canonicalizeTweet(result, query); post != nil {
				page.Posts = append(page.Posts, post)
			}
		}
	}

	return page
}

// parseConversationResponse extracts the focal tweet and flattened replies
// from a TweetDetail response.
func parseConversationResponse(payload map[string]interface{}) (*models.Conversation, error) {
	instructions := getSlice(getMap(payload, "data", "threaded_conversation_with_injections_v2"), "instructions")

	var mainTweet *models.RawPost
	var replies []*models.RawPost

	for _, instRaw := range instructions {
		inst, ok := instRaw.(map[string]interface{})
		if !ok || getString(inst, "type") != "TimelineAddEntries" {
			continue
		}

		for _, entryRaw := range getSlice(inst, "entries") {
			entry, ok := entryRaw.(map[string]interface{})
			if !ok {
				continue
			}
			entryID := getString(entry, "entryId")
			if strings.HasPrefix(entryID, "cursor") {
				continue
			}

			switch {
			case strings.HasPrefix(entryID, "tweet-"):
				result := getMap(entry, "content", "itemContent", "tweet_results", "result")
				if post := canonicalizeTweet(result, ""); post != nil {
					mainTweet = post
				}
			case strings.HasPrefix(entryID, "conversationthread-"):
				for _, itemRaw := range getSlice(getMap(entry, "content"), "items") {
					item, ok := itemRaw.(map[string]interface{})
					if !ok {
						continue
					}
					result := getMap(item, "item", "itemContent", "tweet_results", "result")
					if post := canonicalizeTweet(result, ""); post != nil {
						replies = append(replies, post)
					}
				}
			}
		}
	}

	if mainTweet == nil {
		return nil, fmt.Errorf("conversation response has no focal tweet")
	}

	conv := &models.Conversation{
		ConversationID: mainTweet.ConversationID,
		Source:         models.PlatformTwitter,
		MainPostID:     mainTweet.PostID,
		ReplyCount:     int64(len(replies)),
	}
	if conv.ConversationID == "" {
		conv.ConversationID = mainTweet.PostID
	}
	if mainTweet.PostedAt.Valid {
		conv.StartedAt = mainTweet.PostedAt
		conv.LastReplyAt = mainTweet.PostedAt
	}
	for _, reply := range replies {
		if reply.PostedAt.Valid && (!conv.LastReplyAt.Valid || reply.PostedAt.Time.After(conv.LastReplyAt.Time)) {
			conv.LastReplyAt = reply.PostedAt
		}
	}

	type threadDoc struct {
		ConversationID string            `json:"conversation_id"`
		MainPost       *models.RawPost   `json:"main_post"`
		Replies        []*models.RawPost `json:"replies"`
	}
	doc, err := json.Marshal(threadDoc{
		ConversationID: conv.ConversationID,
		MainPost:       mainTweet,
		Replies:        replies,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode conversation payload: %w", err)
	}
	conv.Payload = string(doc)

	return conv, nil
}

// canonicalizeTweet maps a GraphQL tweet result into the platform-agnostic
// RawPost shape, retaining the opaque payload for forensics.
func canonicalizeTweet(result map[string]interface{}, query string) *models.RawPost {
	if result == nil {
		return nil
	}

	// Unwrap visibility-limited tweets
	if getString(result, "__typename") == "TweetWithVisibilityResults" {
		result = getMap(result, "tweet")
		if result == nil {
			return nil
		}
	}

	legacy := getMap(result, "legacy")
	if legacy == nil {
		return nil
	}

	userResult := getMap(result, "core", "user_results", "result")
	userCore := getMap(userResult, "core")
	userLegacy := getMap(userResult, "legacy")

	post := &models.RawPost{
		Platform:       models.PlatformTwitter,
		PostID:         getString(result, "rest_id"),
		FullText:       getString(legacy, "full_text"),
		Language:       getString(legacy, "lang"),
		LikesCount:     getInt64(legacy, "favorite_count"),
		SharesCount:    getInt64(legacy, "retweet_count"),
		CommentsCount:  getInt64(legacy, "reply_count"),
		IsQuote:        getBool(legacy, "is_quote_status"),
		ConversationID: getString(legacy, "conversation_id_str"),
		SearchQuery:    query,
		ScrapedAt:      time.Now().UTC(),
	}
	if post.PostID == "" {
		return nil
	}

	if inReplyTo := getString(legacy, "in_reply_to_status_id_str"); inReplyTo != "" {
		post.IsReply = true
		post.InReplyToID = inReplyTo
	}

	if views := getMap(result, "views"); views != nil {
		if count := getString(views, "count"); count != "" {
			if n, err := strconv.ParseInt(count, 10, 64); err == nil {
				post.ViewsCount = n
			}
		}
	}

	if userResult != nil {
		post.AuthorID = getString(userResult, "rest_id")
		post.AuthorIsVerified = getBool(userResult, "is_blue_verified")
	}
	if userCore != nil {
		post.AuthorName = getString(userCore, "name")
		post.AuthorUsername = getString(userCore, "screen_name")
	}
	if userLegacy != nil {
		post.AuthorFollowersCount = getInt64(userLegacy, "followers_count")
		post.AuthorFollowingCount = getInt64(userLegacy, "friends_count")
		post.AuthorDescription = getString(userLegacy, "description")
	}

	if post.AuthorUsername != "" {
		post.PostURL = fmt.Sprintf("https://x.com/%s/status/%s", post.AuthorUsername, post.PostID)
		post.AuthorProfileURL = "https://x.com/" + post.AuthorUsername
	}

	if createdAt := getString(legacy, "created_at"); createdAt != "" {
		if ts, err := time.Parse(twitterTimeLayout, createdAt); err == nil {
			post.PostedAt = sql.NullTime{Time: ts.UTC(), Valid: true}
		}
	}

	// First photo feeds the classifier's optional image input
	if entities := getMap(legacy, "extended_entities"); entities != nil {
		for _, mediaRaw := range getSlice(entities, "media") {
			media, ok := mediaRaw.(map[string]interface{})
			if !ok {
				continue
			}
			if getString(media, "type") == "photo" {
				post.ImageURL = getString(media, "media_url_https")
				break
			}
		}
	}

	if raw, err := json.Marshal(result); err == nil {
		post.RawJSON = sql.NullString{String: string(raw), Valid: true}
	}

	return post
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
