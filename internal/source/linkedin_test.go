package source

import (
	"encoding/json"
	"testing"
	"time"
)

const feedFixture = `{
  "included": [
    {
      "$type": "com.linkedin.voyager.feed.SocialDetail",
      "urn": "urn:li:activity:7123",
      "totalSocialActivityCounts": {"numLikes": 44, "numComments": 6, "numShares": 2}
    },
    {
      "$type": "com.linkedin.voyager.feed.render.UpdateV2",
      "entityUrn": "urn:li:fs_updateV2:(urn:li:activity:7123,MEMBER_SHARES,EMPTY,DEFAULT,false)",
      "socialDetail": "urn:li:activity:7123",
      "commentary": {"text": {"text": "Acme outage resolved, thanks for your patience"}},
      "actor": {
        "name": {"text": "Acme Corp"},
        "description": {"text": "12,345 followers"},
        "subDescription": {"text": "5d ago"},
        "navigationContext": {"actionTarget": "https://www.linkedin.com/company/acme-corp"}
      }
    },
    {
      "$type": "com.linkedin.voyager.feed.render.UpdateV2",
      "entityUrn": "urn:li:fs_updateV2:(urn:li:activity:7124,MEMBER_SHARES,EMPTY,DEFAULT,false)",
      "commentary": {"text": {"text": "Hiring Go engineers in Berlin"}},
      "actor": {"name": {"text": "Acme Corp"}}
    }
  ]
}`

func TestParseFeedResponse(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(feedFixture), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	client := &LinkedInClient{companyIDs: map[string]string{}}
	page := client.parseFeedResponse(payload, nil)

	if len(page.Posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(page.Posts))
	}

	post := page.Posts[0]
	if post.PostID != "7123" {
		t.Errorf("post id = %q, want 7123", post.PostID)
	}
	if post.Platform != "linkedin" {
		t.Errorf("platform = %q, want linkedin", post.Platform)
	}
	if post.FullText != "Acme outage resolved, thanks for your patience" {
		t.Errorf("unexpected text %q", post.FullText)
	}
	if post.AuthorName != "Acme Corp" {
		t.Errorf("author = %q", post.AuthorName)
	}
	if post.LikesCount != 44 || post.CommentsCount != 6 || post.SharesCount != 2 {
		t.Errorf("engagement = %d/%d/%d", post.LikesCount, post.CommentsCount, post.SharesCount)
	}
	if !post.PostedAt.Valid {
		t.Fatal("posted_at should be derived from the relative timestamp")
	}
	if !post.PostedAtApprox {
		t.Error("relative timestamps must be flagged approximate")
	}
	if post.PostURL != "https://www.linkedin.com/feed/update/urn:li:activity:7123" {
		t.Errorf("post url = %q", post.PostURL)
	}
}

func TestParseFeedResponseKeywordFilter(t *testing.T) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(feedFixture), &payload); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	client := &LinkedInClient{companyIDs: map[string]string{}}
	page := client.parseFeedResponse(payload, []string{"outage"})

	if len(page.Posts) != 1 {
		t.Fatalf("got %d posts, want 1 after keyword filter", len(page.Posts))
	}
	if page.Posts[0].PostID != "7123" {
		t.Errorf("kept post = %q, want 7123", page.Posts[0].PostID)
	}
}

func TestActivityIDFromURN(t *testing.T) {
	tests := []struct {
		urn  string
		want string
	}{
		{"urn:li:fs_updateV2:(urn:li:activity:712,MEMBER_SHARES,EMPTY,DEFAULT,false)", "712"},
		{"urn:li:activity:999", "999"},
		{"urn:li:company:1337", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := activityIDFromURN(tt.urn); got != tt.want {
			t.Errorf("activityIDFromURN(%q) = %q, want %q", tt.urn, got, tt.want)
		}
	}
}

func TestCanonicalizeUpdateApproxTimestampRelativeToNow(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	elem := map[string]interface{}{
		"$type":     updateV2Type,
		"entityUrn": "urn:li:fs_updateV2:(urn:li:activity:5,MEMBER_SHARES,EMPTY,DEFAULT,false)",
		"actor": map[string]interface{}{
			"subDescription": map[string]interface{}{"text": "2d ago"},
		},
	}

	client := &LinkedInClient{companyIDs: map[string]string{}}
	post := client.canonicalizeUpdate(elem, nil, now)
	if post == nil {
		t.Fatal("expected a post")
	}
	want := now.AddDate(0, 0, -2)
	if !post.PostedAt.Valid || !post.PostedAt.Time.Equal(want) {
		t.Errorf("posted_at = %v, want %v", post.PostedAt, want)
	}
}
