package source

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brandpulse/brandpulse/internal/models"
	"github.com/brandpulse/brandpulse/pkg/config"
)

const searchFixture = `{
  "data": {
    "search_by_raw_query": {
      "search_timeline": {
        "timeline": {
          "instructions": [
            {
              "type": "TimelineAddEntries",
              "entries": [
                {
                  "entryId": "tweet-1901",
                  "content": {
                    "itemContent": {
                      "tweet_results": {
                        "result": {
                          "rest_id": "1901",
                          "core": {
                            "user_results": {
                              "result": {
                                "rest_id": "42",
                                "is_blue_verified": true,
                                "core": {
                                  "name": "Jordan Smith",
                                  "screen_name": "jsmith"
                                },
                                "legacy": {
                                  "followers_count": 1200,
                                  "friends_count": 300,
                                  "description": "Coffee and networks"
                                }
                              }
                            }
                          },
                          "views": {"count": "5400"},
                          "legacy": {
                            "full_text": "My order never arrived and support is silent",
                            "lang": "en",
                            "created_at": "Tue Dec 16 06:31:32 +0000 2025",
                            "favorite_count": 12,
                            "retweet_count": 3,
                            "reply_count": 7,
                            "is_quote_status": false,
                            "conversation_id_str": "1901",
                            "extended_entities": {
                              "media": [
                                {"type": "photo", "media_url_https": "https://pbs.example/img1.jpg"},
                                {"type": "photo", "media_url_https": "https://pbs.example/img2.jpg"}
                              ]
                            }
                          }
                        }
                      }
                    }
                  }
                },
                {
                  "entryId": "tweet-1902",
                  "content": {
                    "itemContent": {
                      "tweet_results": {
                        "result": {
                          "__typename": "TweetWithVisibilityResults",
                          "tweet": {
                            "rest_id": "1902",
                            "legacy": {
                              "full_text": "reply text",
                              "lang": "en",
                              "created_at": "Tue Dec 16 07:00:00 +0000 2025",
                              "in_reply_to_status_id_str": "1901",
                              "conversation_id_str": "1901"
                            }
                          }
                        }
                      }
                    }
                  }
                },
                {
                  "entryId": "cursor-bottom-0",
                  "content": {"value": "DAACCgACGc"}
                }
              ]
            }
          ]
        }
      }
    }
  }
}`

func TestParseSearchResponse(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(searchFixture), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	page := parseSearchResponse(payload, "acme support")

	if len(page.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(page.Posts))
	}
	if page.NextCursor != "DAACCgACGc" {
		t.Errorf("cursor = %q, want DAACCgACGc", page.NextCursor)
	}

	post := page.Posts[0]
	if post.PostID != "1901" {
		t.Errorf("post id = %q, want 1901", post.PostID)
	}
	if post.Platform != "twitter" {
		t.Errorf("platform = %q, want twitter", post.Platform)
	}
	if post.FullText != "My order never arrived and support is silent" {
		t.Errorf("unexpected full text %q", post.FullText)
	}
	if post.AuthorUsername != "jsmith" || post.AuthorName != "Jordan Smith" {
		t.Errorf("author = %q/%q", post.AuthorName, post.AuthorUsername)
	}
	if !post.AuthorIsVerified {
		t.Error("author should be verified")
	}
	if post.AuthorFollowersCount != 1200 || post.AuthorFollowingCount != 300 {
		t.Errorf("follower counts = %d/%d", post.AuthorFollowersCount, post.AuthorFollowingCount)
	}
	if post.LikesCount != 12 || post.SharesCount != 3 || post.CommentsCount != 7 {
		t.Errorf("engagement = %d/%d/%d", post.LikesCount, post.SharesCount, post.CommentsCount)
	}
	if post.ViewsCount != 5400 {
		t.Errorf("views = %d, want 5400", post.ViewsCount)
	}
	if post.ImageURL != "https://pbs.example/img1.jpg" {
		t.Errorf("image url = %q, want first photo", post.ImageURL)
	}
	if post.PostURL != "https://x.com/jsmith/status/1901" {
		t.Errorf("post url = %q", post.PostURL)
	}
	if post.SearchQuery != "acme support" {
		t.Errorf("search query = %q", post.SearchQuery)
	}
	if !post.PostedAt.Valid {
		t.Fatal("posted_at should be set")
	}
	want := time.Date(2025, 12, 16, 6, 31, 32, 0, time.UTC)
	if !post.PostedAt.Time.Equal(want) {
		t.Errorf("posted_at = %v, want %v", post.PostedAt.Time, want)
	}
	if post.PostedAtApprox {
		t.Error("twitter timestamps are exact, not approximate")
	}
	if !post.RawJSON.Valid || post.RawJSON.String == "" {
		t.Error("raw payload should be retained")
	}

	// Second entry is visibility-wrapped and a reply
	reply := page.Posts[1]
	if reply.PostID != "1902" {
		t.Errorf("reply id = %q, want 1902", reply.PostID)
	}
	if !reply.IsReply || reply.InReplyToID != "1901" {
		t.Errorf("reply linkage = %v/%q", reply.IsReply, reply.InReplyToID)
	}
}

func TestParseSearchResponseEmpty(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(`{"data":{}}`), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	page := parseSearchResponse(payload, "q")
	if len(page.Posts) != 0 || page.NextCursor != "" {
		t.Errorf("empty response should yield empty page, got %d posts cursor %q", len(page.Posts), page.NextCursor)
	}
}

func TestRecordScrapeState(t *testing.T) {
	store := &MemoryStateStore{}
	client := &TwitterClient{state: store}

	client.recordScrapeState("acme", []*models.RawPost{
		{PostID: "1"}, {PostID: "2"},
	})

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if state.LastQuery != "acme" {
		t.Errorf("last query = %q, want acme", state.LastQuery)
	}
	if len(state.LastProcessedIDs) != 2 || state.LastProcessedIDs[0] != "1" {
		t.Errorf("processed ids = %v", state.LastProcessedIDs)
	}
	if state.LastRun.IsZero() {
		t.Error("last run should be stamped")
	}
}

func TestScrapeStateResumesAcrossClients(t *testing.T) {
	store := &MemoryStateStore{}
	err := store.Save(&ScrapeState{
		LastProcessedIDs: []string{"1", "2"},
		LastQuery:        "acme",
		LastRun:          time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	cfg := config.TwitterConfig{AuthToken: "auth", CSRFToken: "csrf"}
	client, err := NewTwitterClient(cfg, &MemoryTokenStore{}, store)
	if err != nil {
		t.Fatalf("NewTwitterClient failed: %v", err)
	}

	// Same query: ids from the previous process are carried forward
	client.recordScrapeState("acme", []*models.RawPost{{PostID: "3"}})

	state, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"3", "1", "2"}
	if len(state.LastProcessedIDs) != len(want) {
		t.Fatalf("processed ids = %v, want %v", state.LastProcessedIDs, want)
	}
	for i, id := range want {
		if state.LastProcessedIDs[i] != id {
			t.Errorf("processed ids = %v, want %v", state.LastProcessedIDs, want)
			break
		}
	}

	// A new query starts a fresh id list
	client.recordScrapeState("globex", []*models.RawPost{{PostID: "9"}})
	state, err = store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(state.LastProcessedIDs) != 1 || state.LastProcessedIDs[0] != "9" {
		t.Errorf("processed ids after query change = %v, want [9]", state.LastProcessedIDs)
	}
	if state.LastQuery != "globex" {
		t.Errorf("last query = %q, want globex", state.LastQuery)
	}
}

func TestBuildRawQuery(t *testing.T) {
	window := TimeWindow{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	got := buildRawQuery("acme", window)
	want := "acme until_time:1767229200 since_time:1767225600"
	if got != want {
		t.Errorf("buildRawQuery = %q, want %q", got, want)
	}
}

const detailFixture = `{
  "data": {
    "threaded_conversation_with_injections_v2": {
      "instructions": [
        {
          "type": "TimelineAddEntries",
          "entries": [
            {
              "entryId": "tweet-1901",
              "content": {
                "itemContent": {
                  "tweet_results": {
                    "result": {
                      "rest_id": "1901",
                      "legacy": {
                        "full_text": "main post",
                        "created_at": "Tue Dec 16 06:31:32 +0000 2025",
                        "conversation_id_str": "1901"
                      }
                    }
                  }
                }
              }
            },
            {
              "entryId": "conversationthread-9",
              "content": {
                "items": [
                  {
                    "item": {
                      "itemContent": {
                        "tweet_results": {
                          "result": {
                            "rest_id": "1905",
                            "legacy": {
                              "full_text": "a reply",
                              "created_at": "Tue Dec 16 08:00:00 +0000 2025",
                              "conversation_id_str": "1901",
                              "in_reply_to_status_id_str": "1901"
                            }
                          }
                        }
                      }
                    }
                  }
                ]
              }
            },
            {
              "entryId": "cursor-showmore-1",
              "content": {}
            }
          ]
        }
      ]
    }
  }
}`

func TestParseConversationResponse(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(detailFixture), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	conv, err := parseConversationResponse(payload)
	if err != nil {
		t.Fatalf("parseConversationResponse failed: %v", err)
	}

	if conv.ConversationID != "1901" {
		t.Errorf("conversation id = %q, want 1901", conv.ConversationID)
	}
	if conv.MainPostID != "1901" {
		t.Errorf("main post id = %q, want 1901", conv.MainPostID)
	}
	if conv.ReplyCount != 1 {
		t.Errorf("reply count = %d, want 1", conv.ReplyCount)
	}
	if !conv.StartedAt.Valid || !conv.StartedAt.Time.Equal(time.Date(2025, 12, 16, 6, 31, 32, 0, time.UTC)) {
		t.Errorf("started_at = %v", conv.StartedAt)
	}
	if !conv.LastReplyAt.Valid || !conv.LastReplyAt.Time.Equal(time.Date(2025, 12, 16, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("last_reply_at = %v, want reply time", conv.LastReplyAt)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(conv.Payload), &doc); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if doc["conversation_id"] != "1901" {
		t.Errorf("payload conversation_id = %v", doc["conversation_id"])
	}
}

func TestParseConversationResponseNoFocalTweet(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(`{"data":{}}`), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}
	if _, err := parseConversationResponse(payload); err == nil {
		t.Error("expected error for response without focal tweet")
	}
}
