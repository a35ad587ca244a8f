// Package netdisk implements the remote storage gateway: resolving
// third-party share links, transferring their content into the operator's
// account and republishing long-lived shares.
package netdisk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultCallTimeout = 30 * time.Second
	// settleDelay gives the remote side time to finish materializing a
	// transfer before we look for the new entries.
	settleDelay = 10 * time.Second
)

// ClientOptions configures the HTTP gateway client.
type ClientOptions struct {
	BaseURL string
	Cookie  string
	// RequestsPerSecond caps outbound calls regardless of task pacing.
	RequestsPerSecond float64
	CallTimeout       time.Duration
}

// Client talks to the vendor's storage API. It satisfies Gateway.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	timeout time.Duration
	// settle lets tests shorten the post-transfer wait.
	settle time.Duration
}

func NewClient(opts ClientOptions) *Client {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Cookie", opts.Cookie).
		SetHeader("User-Agent", "linkporter/1.0")
	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		timeout: opts.CallTimeout,
		settle:  settleDelay,
	}
}

type respEnvelope struct {
	State  bool            `json:"state"`
	Errno  int             `json:"errno"`
	ErrMsg string          `json:"error"`
	Data   json.RawMessage `json:"data"`
	DirID  string          `json:"cid,omitempty"`
}

// request performs one API call with the hard rate cap and per-call timeout
// applied, decoding the vendor envelope and surfacing failures as
// *RemoteError.
func (c *Client) request(ctx context.Context, method, pathname string, callback func(req *resty.Request)) (*respEnvelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.http.R().SetContext(ctx)
	if callback != nil {
		callback(req)
	}
	res, err := req.Execute(method, pathname)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", pathname, err)
	}
	var envelope respEnvelope
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", pathname, err)
	}
	if !envelope.State {
		return &envelope, &RemoteError{Code: envelope.Errno, Message: envelope.ErrMsg}
	}
	return &envelope, nil
}

type snapEntry struct {
	FileID   string `json:"fid"`
	FolderID string `json:"cid"`
	Name     string `json:"n"`
}

func (c *Client) Resolve(ctx context.Context, shareURL, accessCode string) (*ShareHandle, error) {
	payload, err := ParseShareURL(shareURL)
	if err != nil {
		return nil, &RemoteError{Message: "invalid link: " + shareURL}
	}
	if accessCode != "" {
		payload.AccessCode = accessCode
	}

	envelope, err := c.request(ctx, http.MethodGet, "/share/snap", func(req *resty.Request) {
		req.SetQueryParams(map[string]string{
			"share_code":   payload.ShareCode,
			"receive_code": payload.AccessCode,
		})
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		List []snapEntry `json:"list"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decode share snapshot: %w", err)
	}
	handle := &ShareHandle{ShareCode: payload.ShareCode, ReceiveCode: payload.AccessCode}
	for _, entry := range data.List {
		id := entry.FileID
		if id == "" {
			id = entry.FolderID
		}
		if id == "" {
			log.Warn().Str("name", entry.Name).Msg("share entry missing both fid and cid")
			continue
		}
		handle.FileIDs = append(handle.FileIDs, id)
		handle.Names = append(handle.Names, entry.Name)
	}
	if len(handle.FileIDs) == 0 {
		return nil, &RemoteError{Message: "share contains no files"}
	}
	return handle, nil
}

func (c *Client) Transfer(ctx context.Context, handle *ShareHandle, dirID string) (*TransferResult, error) {
	_, err := c.request(ctx, http.MethodPost, "/share/receive", func(req *resty.Request) {
		req.SetFormData(map[string]string{
			"share_code":   handle.ShareCode,
			"receive_code": handle.ReceiveCode,
			"file_id":      strings.Join(handle.FileIDs, ","),
			"cid":          dirID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &TransferResult{DirID: dirID, Names: handle.Names}, nil
}

// CreateShare publishes the transferred entries as a new permanent share.
// The remote side materializes transfers asynchronously, so this waits for
// things to settle and matches the destination listing by name first.
func (c *Client) CreateShare(ctx context.Context, result *TransferResult) (*ShareLink, error) {
	fileIDs, err := c.findTransferred(ctx, result)
	if err != nil {
		return nil, err
	}
	envelope, err := c.request(ctx, http.MethodPost, "/share/send", func(req *resty.Request) {
		req.SetFormData(map[string]string{"file_ids": strings.Join(fileIDs, ",")})
	})
	if err != nil {
		return nil, err
	}
	var data struct {
		ShareCode   string `json:"share_code"`
		ReceiveCode string `json:"receive_code"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decode share send: %w", err)
	}
	if data.ShareCode == "" {
		return nil, &RemoteError{Message: "share created without a share code"}
	}

	// Promote the default 15-day share to a permanent one.
	if _, err := c.request(ctx, http.MethodPost, "/share/update", func(req *resty.Request) {
		req.SetFormData(map[string]string{
			"share_code":     data.ShareCode,
			"share_duration": "-1",
		})
	}); err != nil {
		return nil, err
	}

	link := &ShareLink{
		ShareCode:   data.ShareCode,
		ReceiveCode: data.ReceiveCode,
		URL:         "https://115.com/s/" + data.ShareCode,
	}
	if data.ReceiveCode != "" {
		link.URL += "?password=" + data.ReceiveCode
	}
	return link, nil
}

// findTransferred waits for the remote side to settle, then matches the
// transferred names against the destination listing to learn their new ids.
func (c *Client) findTransferred(ctx context.Context, result *TransferResult) ([]string, error) {
	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	entries, err := c.ListDir(ctx, result.DirID)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(result.Names))
	for _, name := range result.Names {
		wanted[name] = struct{}{}
	}
	var ids []string
	for _, entry := range entries {
		if _, ok := wanted[entry.Name]; ok {
			ids = append(ids, entry.ID)
		}
	}
	if len(ids) == 0 {
		return nil, &RemoteError{Message: "transferred entries not found in destination"}
	}
	return ids, nil
}

type listEntry struct {
	FileID   string `json:"file_id"`
	FolderID string `json:"fid"`
	Name     string `json:"fn"`
}

func (c *Client) ListDir(ctx context.Context, dirID string) ([]Entry, error) {
	envelope, err := c.request(ctx, http.MethodGet, "/files", func(req *resty.Request) {
		req.SetQueryParam("cid", dirID)
	})
	if err != nil {
		return nil, err
	}
	var raw []listEntry
	if err := json.Unmarshal(envelope.Data, &raw); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		// Files carry file_id, folders carry fid.
		switch {
		case item.FileID != "":
			entries = append(entries, Entry{ID: item.FileID, Name: item.Name})
		case item.FolderID != "":
			entries = append(entries, Entry{ID: item.FolderID, Name: item.Name, IsFolder: true})
		default:
			log.Warn().Str("name", item.Name).Msg("listing entry without id")
		}
	}
	return entries, nil
}

func (c *Client) Delete(ctx context.Context, ids []string) error {
	_, err := c.request(ctx, http.MethodPost, "/files/delete", func(req *resty.Request) {
		req.SetFormData(map[string]string{"file_ids": strings.Join(ids, ",")})
	})
	return err
}

func (c *Client) EmptyTrash(ctx context.Context, password string) error {
	_, err := c.request(ctx, http.MethodPost, "/rbin/clean", func(req *resty.Request) {
		form := map[string]string{}
		if password != "" {
			form["password"] = password
		}
		req.SetFormData(form)
	})
	return err
}

func (c *Client) EnsureDir(ctx context.Context, path string) (string, error) {
	envelope, err := c.request(ctx, http.MethodPost, "/files/mkdir", func(req *resty.Request) {
		req.SetFormData(map[string]string{"path": path})
	})
	if err != nil {
		return "", err
	}
	if envelope.DirID == "" {
		return "", &RemoteError{Message: "mkdir response missing cid"}
	}
	return envelope.DirID, nil
}

var _ Gateway = (*Client)(nil)
