package publisher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/chronopost/chronopost/internal/config"
	"github.com/chronopost/chronopost/internal/models"
	"github.com/chronopost/chronopost/internal/retry"
)

const (
	tweetEndpoint       = "https://api.twitter.com/2/tweets"
	mediaUploadEndpoint = "https://upload.twitter.com/1.1/media/upload.json"
	verifyEndpoint      = "https://api.twitter.com/2/users/me"
)

// RateLimitError surfaces a 429 from the platform with the reset hint
// when one was provided. Callers back off rather than retry hot.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("platform rate limited (retry after %v)", e.RetryAfter)
	}
	return "platform rate limited"
}

// Publisher posts content to the social platform.
type Publisher interface {
	PostText(ctx context.Context, text string) (string, error)
	PostWithMedia(ctx context.Context, text string, media *models.Media) (string, error)
	PostThread(ctx context.Context, parts []string) (string, error)
}

// TwitterClient posts via the Twitter v2 API with OAuth 1.0a request
// signing; media uploads go through the v1.1 chunked upload endpoint.
type TwitterClient struct {
	apiKey            string
	apiSecret         string
	accessToken       string
	accessTokenSecret string
	bearerToken       string
	httpClient        *http.Client
	logger            *slog.Logger

	tweetURL  string
	uploadURL string
	verifyURL string
}

// NewTwitterClient creates a Twitter publisher.
func NewTwitterClient(cfg config.PublisherConfig, logger *slog.Logger) *TwitterClient {
	return &TwitterClient{
		apiKey:            cfg.APIKey,
		apiSecret:         cfg.APISecret,
		accessToken:       cfg.AccessToken,
		accessTokenSecret: cfg.AccessTokenSecret,
		bearerToken:       cfg.BearerToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		tweetURL:  tweetEndpoint,
		uploadURL: mediaUploadEndpoint,
		verifyURL: verifyEndpoint,
	}
}

type tweetRequest struct {
	Text  string `json:"text"`
	Media *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"errors,omitempty"`
}

// PostText publishes a single text post and returns the post id.
func (c *TwitterClient) PostText(ctx context.Context, text string) (string, error) {
	return c.postTweet(ctx, tweetRequest{Text: text})
}

// PostWithMedia uploads the image, then publishes the post referencing
// it.
func (c *TwitterClient) PostWithMedia(ctx context.Context, text string, media *models.Media) (string, error) {
	mediaID, err := c.uploadMedia(ctx, media)
	if err != nil {
		return "", fmt.Errorf("media upload: %w", err)
	}

	req := tweetRequest{Text: text}
	req.Media = &struct {
		MediaIDs []string `json:"media_ids"`
	}{MediaIDs: []string{mediaID}}

	return c.postTweet(ctx, req)
}

// PostThread publishes the parts as a reply chain and returns the
// first post's id.
func (c *TwitterClient) PostThread(ctx context.Context, parts []string) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("empty thread")
	}

	var rootID, prevID string
	for i, part := range parts {
		req := tweetRequest{Text: part}
		if prevID != "" {
			req.Reply = &struct {
				InReplyToTweetID string `json:"in_reply_to_tweet_id"`
			}{InReplyToTweetID: prevID}
		}

		id, err := c.postTweet(ctx, req)
		if err != nil {
			return rootID, fmt.Errorf("thread part %d: %w", i+1, err)
		}
		if rootID == "" {
			rootID = id
		}
		prevID = id
	}

	c.logger.Info("thread posted", "root_id", rootID, "parts", len(parts))
	return rootID, nil
}

// ValidateCredentials checks the configured credentials against the
// platform.
func (c *TwitterClient) ValidateCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.verifyURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.bearerToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("invalid credentials (status %d): %s", resp.StatusCode, string(body))
	}

	c.logger.Info("platform credentials validated")
	return nil
}

func (c *TwitterClient) postTweet(ctx context.Context, tweet tweetRequest) (string, error) {
	body, err := json.Marshal(tweet)
	if err != nil {
		return "", fmt.Errorf("marshal tweet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tweetURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tweet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	authHeader, err := c.oauthHeader(http.MethodPost, c.tweetURL, nil)
	if err != nil {
		return "", fmt.Errorf("sign tweet request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("post tweet: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read tweet response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{RetryAfter: retryAfterHint(resp)}
	}

	var parsed tweetResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse tweet response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		if len(parsed.Errors) > 0 {
			return "", fmt.Errorf("platform error: %s", parsed.Errors[0].Message)
		}
		return "", fmt.Errorf("platform returned status %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("post published",
		"post_id", parsed.Data.ID,
		"text_length", len(tweet.Text))

	return parsed.Data.ID, nil
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// uploadMedia pushes image bytes through the v1.1 upload endpoint and
// returns the platform media id.
func (c *TwitterClient) uploadMedia(ctx context.Context, media *models.Media) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("media", "media.jpg")
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return "", fmt.Errorf("write upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	authHeader, err := c.oauthHeader(http.MethodPost, c.uploadURL, nil)
	if err != nil {
		return "", fmt.Errorf("sign upload request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("upload media: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{RetryAfter: retryAfterHint(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed mediaUploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if parsed.MediaIDString == "" {
		return "", fmt.Errorf("upload response missing media id")
	}

	c.logger.Debug("media uploaded",
		"media_id", parsed.MediaIDString,
		"bytes", len(media.Data))

	return parsed.MediaIDString, nil
}

// oauthHeader builds an OAuth 1.0a HMAC-SHA1 authorization header.
func (c *TwitterClient) oauthHeader(method, apiURL string, params map[string]string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	nonceStr := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, base64.StdEncoding.EncodeToString(nonce))

	oauthParams := map[string]string{
		"oauth_consumer_key":     c.apiKey,
		"oauth_nonce":            nonceStr,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_token":            c.accessToken,
		"oauth_version":          "1.0",
	}

	allParams := make(map[string]string, len(oauthParams)+len(params))
	for k, v := range oauthParams {
		allParams[k] = v
	}
	for k, v := range params {
		allParams[k] = v
	}

	paramPairs := make([]string, 0, len(allParams))
	for k, v := range allParams {
		paramPairs = append(paramPairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(paramPairs)
	paramString := strings.Join(paramPairs, "&")

	signatureBase := method + "&" + url.QueryEscape(apiURL) + "&" + url.QueryEscape(paramString)
	signingKey := url.QueryEscape(c.apiSecret) + "&" + url.QueryEscape(c.accessTokenSecret)

	mac := hmac.New(sha1.New, []byte(signingKey))
	mac.Write([]byte(signatureBase))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authPairs := make([]string, 0, len(oauthParams))
	for k, v := range oauthParams {
		authPairs = append(authPairs, url.QueryEscape(k)+"=\""+url.QueryEscape(v)+"\"")
	}
	sort.Strings(authPairs)

	return "OAuth " + strings.Join(authPairs, ", "), nil
}

// retryAfterHint parses the platform's rate-limit reset headers.
func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				return until
			}
		}
	}
	return 0
}
