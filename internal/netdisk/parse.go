package netdisk

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// SharePayload is the share/access code pair extracted from a share URL.
type SharePayload struct {
	ShareCode  string
	AccessCode string
}

var ErrNotShareLink = errors.New("not a recognized share link")

// shareLinkRe matches the share-link shapes the vendor hands out, e.g.
// https://115.com/s/swz1abc?password=x1y2 and the cdn/legacy hosts.
var shareLinkRe = regexp.MustCompile(`^https?://(?:www\.)?(?:115|115cdn|anxia)\.com/s/([0-9a-zA-Z]+)`)

// ParseShareURL extracts the share code and optional access code from a raw
// share URL. The access code may ride in the ?password= query or be supplied
// separately by the caller.
func ParseShareURL(raw string) (SharePayload, error) {
	raw = strings.TrimSpace(raw)
	m := shareLinkRe.FindStringSubmatch(raw)
	if m == nil {
		return SharePayload{}, ErrNotShareLink
	}
	payload := SharePayload{ShareCode: m[1]}
	if u, err := url.Parse(raw); err == nil {
		payload.AccessCode = u.Query().Get("password")
	}
	return payload, nil
}

// IsShareURL reports whether raw looks like a share link we can process.
func IsShareURL(raw string) bool {
	_, err := ParseShareURL(raw)
	return err == nil
}
