// Package listing models Reddit's listing envelope with typed thing
// variants. The gateway decodes upstream responses into these shapes and
// rejects payloads that do not match, instead of passing untyped JSON
// through to callers.
package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

const (
	// KindListing is the envelope kind for paginated collections.
	KindListing = "Listing"
	// KindComment tags t1 things.
	KindComment = "t1"
	// KindPost tags t3 things.
	KindPost = "t3"
)

// ErrUnexpectedShape signals an upstream payload that does not match the
// declared listing schema.
var ErrUnexpectedShape = errors.New("listing: unexpected payload shape")

// fullnamePattern matches Reddit fullnames for comments (t1_) and posts (t3_).
var fullnamePattern = regexp.MustCompile(`(?i)^t[13]_[a-z0-9]+$`)

// ValidFullname reports whether id is a votable comment or post fullname.
func ValidFullname(id string) bool {
	return fullnamePattern.MatchString(id)
}

// Post is a t3 thing as served by listing endpoints.
type Post struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	Over18        bool    `json:"over_18"`
	Stickied      bool    `json:"stickied"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
	SelfText      string  `json:"selftext,omitempty"`
	CreatedUTC    float64 `json:"created_utc"`
	LikesUp       *bool   `json:"likes"`
	UpvoteRatio   float64 `json:"upvote_ratio,omitempty"`
	LinkFlairText string  `json:"link_flair_text,omitempty"`
}

// Comment is a t1 thing as served by comment listing endpoints.
type Comment struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	Score      int     `json:"score"`
	Permalink  string  `json:"permalink"`
	Subreddit  string  `json:"subreddit"`
	CreatedUTC float64 `json:"created_utc"`
	LikesUp    *bool   `json:"likes"`
}

// Thing is one tagged child of a listing. Exactly one of Post or Comment is
// set, according to Kind.
type Thing struct {
	Kind    string
	Post    *Post
	Comment *Comment
}

// Fullname returns the t1_/t3_ identifier of the wrapped thing.
func (t Thing) Fullname() string {
	switch t.Kind {
	case KindPost:
		if t.Post != nil {
			return t.Post.Name
		}
	case KindComment:
		if t.Comment != nil {
			return t.Comment.Name
		}
	}
	return ""
}

// Over18 reports whether the wrapped thing is marked NSFW. Comments are
// never flagged; only posts carry the marker.
func (t Thing) Over18() bool {
	return t.Kind == KindPost && t.Post != nil && t.Post.Over18
}

// UnmarshalJSON decodes the tagged child envelope, dispatching on kind.
func (t *Thing) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode thing envelope: %w", err)
	}
	switch envelope.Kind {
	case KindPost:
		var post Post
		if err := json.Unmarshal(envelope.Data, &post); err != nil {
			return fmt.Errorf("decode post: %w", err)
		}
		if post.Name == "" {
			return fmt.Errorf("post missing fullname: %w", ErrUnexpectedShape)
		}
		t.Kind = KindPost
		t.Post = &post
	case KindComment:
		var comment Comment
		if err := json.Unmarshal(envelope.Data, &comment); err != nil {
			return fmt.Errorf("decode comment: %w", err)
		}
		if comment.Name == "" {
			return fmt.Errorf("comment missing fullname: %w", ErrUnexpectedShape)
		}
		t.Kind = KindComment
		t.Comment = &comment
	default:
		return fmt.Errorf("kind %q: %w", envelope.Kind, ErrUnexpectedShape)
	}
	return nil
}

// Page is one decoded listing page. After is empty when the listing is
// exhausted.
type Page struct {
	Things []Thing
	After  string
}

// Decode parses a raw upstream listing payload, validating the envelope kind.
func Decode(raw []byte) (*Page, error) {
	var envelope struct {
		Kind string `json:"kind"`
		Data struct {
			After    string            `json:"after"`
			Children []json.RawMessage `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode listing envelope: %w", err)
	}
	if envelope.Kind != KindListing {
		return nil, fmt.Errorf("kind %q: %w", envelope.Kind, ErrUnexpectedShape)
	}

	page := &Page{After: envelope.Data.After}
	for _, child := range envelope.Data.Children {
		var thing Thing
		if err := json.Unmarshal(child, &thing); err != nil {
			// Listing endpoints interleave non-votable kinds ("more",
			// nested listings); skip anything that is not a post or comment.
			if errors.Is(err, ErrUnexpectedShape) {
				continue
			}
			return nil, err
		}
		page.Things = append(page.Things, thing)
	}
	return page, nil
}

// SubredditAbout is the t5 payload served by /r/<name>/about.json.
type SubredditAbout struct {
	DisplayName string  `json:"display_name"`
	Title       string  `json:"title"`
	Description string  `json:"public_description"`
	Subscribers int     `json:"subscribers"`
	IconImg     string  `json:"icon_img,omitempty"`
	Over18      bool    `json:"over18"`
	CreatedUTC  float64 `json:"created_utc"`
}

// DecodeAbout parses a t5 about payload.
func DecodeAbout(raw []byte) (*SubredditAbout, error) {
	var envelope struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode about envelope: %w", err)
	}
	if envelope.Kind != "t5" {
		return nil, fmt.Errorf("kind %q: %w", envelope.Kind, ErrUnexpectedShape)
	}
	var about SubredditAbout
	if err := json.Unmarshal(envelope.Data, &about); err != nil {
		return nil, fmt.Errorf("decode about: %w", err)
	}
	return &about, nil
}
