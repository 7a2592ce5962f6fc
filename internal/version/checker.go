// Package version checks the project's GitHub releases for a newer
// build than the one running.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultReleaseURL = "https://api.github.com/repos/studiowebux/postdad/releases/latest"

// Release is the subset of the GitHub release payload we read.
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// Version returns the release version without the leading "v".
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// Checker queries the release endpoint. The zero value uses the
// project's GitHub releases and http.DefaultClient.
type Checker struct {
	ReleaseURL string
	Client     *http.Client
}

// Latest fetches the most recent release. The lookup is bounded to a
// few seconds regardless of the caller's context.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := c.ReleaseURL
	if url == "" {
		url = defaultReleaseURL
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "postdad")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release lookup returned %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	return &release, nil
}

// CheckForUpdate reports whether a release newer than currentVersion
// exists, and where to get it.
func CheckForUpdate(ctx context.Context, currentVersion string) (available bool, latestVersion string, url string, err error) {
	var c Checker
	release, err := c.Latest(ctx)
	if err != nil {
		return false, "", "", err
	}
	latest := release.Version()
	if latest != "" && newer(latest, strings.TrimPrefix(currentVersion, "v")) {
		return true, latest, release.HTMLURL, nil
	}
	return false, latest, release.HTMLURL, nil
}

// newer compares dotted versions numerically. A missing part counts
// as zero; pre-release and build suffixes are ignored.
func newer(latest, current string) bool {
	for i := 0; ; i++ {
		a, moreA := versionPart(latest, i)
		b, moreB := versionPart(current, i)
		if !moreA && !moreB {
			return false
		}
		if a != b {
			return a > b
		}
	}
}

// versionPart returns the i-th dotted component of version, with ok
// false once i runs past the last component.
func versionPart(version string, i int) (n int, ok bool) {
	if idx := strings.IndexAny(version, "-+"); idx != -1 {
		version = version[:idx]
	}
	parts := strings.Split(version, ".")
	if i >= len(parts) {
		return 0, false
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0, true
	}
	return n, true
}
