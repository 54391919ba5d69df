package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
)

func testClient(t *testing.T) *TwitterClient {
	t.Helper()
	return NewTwitterClient(config.PublisherConfig{
		APIKey:            "key",
		APISecret:         "secret",
		AccessToken:       "token",
		AccessTokenSecret: "token-secret",
		BearerToken:       "bearer",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPostText_Success(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req tweetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "On this day in 1066" {
			t.Errorf("text = %q", req.Text)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"id": "1234567890", "text": req.Text},
		})
	}))
	defer server.Close()

	client := testClient(t)
	client.tweetURL = server.URL

	id, err := client.PostText(context.Background(), "On this day in 1066")
	if err != nil {
		t.Fatalf("PostText failed: %v", err)
	}
	if id != "1234567890" {
		t.Errorf("post id = %s", id)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") {
		t.Errorf("authorization header = %q, want OAuth 1.0a", gotAuth)
	}
	for _, param := range []string{"oauth_consumer_key", "oauth_nonce", "oauth_signature", "oauth_timestamp", "oauth_token"} {
		if !strings.Contains(gotAuth, param) {
			t.Errorf("authorization header missing %s", param)
		}
	}
}

func TestPostText_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(t)
	client.tweetURL = server.URL

	_, err := client.PostText(context.Background(), "anything")

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfter != 120*time.Second {
		t.Errorf("retry after = %v, want 120s", rateErr.RetryAfter)
	}
}

func TestPostText_PlatformError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"message": "duplicate content", "type": "forbidden"}},
		})
	}))
	defer server.Close()

	client := testClient(t)
	client.tweetURL = server.URL

	_, err := client.PostText(context.Background(), "anything")
	if err == nil || !strings.Contains(err.Error(), "duplicate content") {
		t.Fatalf("err = %v, want platform error message", err)
	}
}

func TestPostWithMedia_UploadsThenPosts(t *testing.T) {
	uploadServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, _, err := r.FormFile("media")
		if err != nil {
			t.Errorf("missing media part: %v", err)
		} else {
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"media_id_string": "media-777"})
	}))
	defer uploadServer.Close()

	tweetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tweetRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Media == nil || len(req.Media.MediaIDs) != 1 || req.Media.MediaIDs[0] != "media-777" {
			t.Errorf("tweet request media = %+v, want media-777", req.Media)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "42"}})
	}))
	defer tweetServer.Close()

	client := testClient(t)
	client.tweetURL = tweetServer.URL
	client.uploadURL = uploadServer.URL

	id, err := client.PostWithMedia(context.Background(), "with picture",
		&models.Media{Data: []byte("jpeg-bytes"), ContentType: "image/jpeg"})
	if err != nil {
		t.Fatalf("PostWithMedia failed: %v", err)
	}
	if id != "42" {
		t.Errorf("post id = %s", id)
	}
}

func TestPostThread_ChainsReplies(t *testing.T) {
	var requests []tweetRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tweetRequest
		json.NewDecoder(r.Body).Decode(&req)
		requests = append(requests, req)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"id": fmt.Sprintf("id-%d", len(requests))},
		})
	}))
	defer server.Close()

	client := testClient(t)
	client.tweetURL = server.URL

	rootID, err := client.PostThread(context.Background(), []string{"part one", "part two", "part three"})
	if err != nil {
		t.Fatalf("PostThread failed: %v", err)
	}
	if rootID != "id-1" {
		t.Errorf("root id = %s, want the first post's id", rootID)
	}

	if len(requests) != 3 {
		t.Fatalf("posted %d parts, want 3", len(requests))
	}
	if requests[0].Reply != nil {
		t.Error("first part must not be a reply")
	}
	if requests[1].Reply == nil || requests[1].Reply.InReplyToTweetID != "id-1" {
		t.Errorf("second part reply = %+v, want reply to id-1", requests[1].Reply)
	}
	if requests[2].Reply == nil || requests[2].Reply.InReplyToTweetID != "id-2" {
		t.Errorf("third part reply = %+v, want reply to id-2", requests[2].Reply)
	}
}

func TestPostThread_Empty(t *testing.T) {
	if _, err := testClient(t).PostThread(context.Background(), nil); err == nil {
		t.Error("empty thread should fail")
	}
}

func TestValidateCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer bearer" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "u1"}})
	}))
	defer server.Close()

	client := testClient(t)
	client.verifyURL = server.URL

	if err := client.ValidateCredentials(context.Background()); err != nil {
		t.Fatalf("ValidateCredentials failed: %v", err)
	}

	client.bearerToken = "wrong"
	if err := client.ValidateCredentials(context.Background()); err == nil {
		t.Error("wrong bearer token should fail validation")
	}
}

func TestOAuthHeader_Deterministic(t *testing.T) {
	client := testClient(t)

	header, err := client.oauthHeader(http.MethodPost, "https://api.twitter.com/2/tweets", nil)
	if err != nil {
		t.Fatalf("oauthHeader failed: %v", err)
	}
	if !strings.HasPrefix(header, "OAuth ") {
		t.Errorf("header = %q", header)
	}
	if !strings.Contains(header, `oauth_signature_method="HMAC-SHA1"`) {
		t.Error("header missing signature method")
	}
	if !strings.Contains(header, `oauth_version="1.0"`) {
		t.Error("header missing oauth version")
	}
}
