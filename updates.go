package devmeter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/net/proxy"
)

const (
	Version  = "1.2.0"
	verMajor = 1
	verMinor = 2
	verBuild = 0
)

// ReleaseInfo describes the latest published release that has a download for
// this platform.
type ReleaseInfo struct {
	Version      string `json:"version"`
	DownloadUrl  string `json:"download_url"`
	ReleaseNotes string `json:"release_notes"`

	// the running build is older than the published release
	UpdateAvailable bool `json:"update_available"`
	// the running build is newer than anything published
	Prerelease bool `json:"prerelease"`
}

// UpdateCheck fetches the release history file and compares the running
// version against the newest published one. Failures are reported to the
// caller and never affect the rest of the application.
type UpdateCheck struct {
	Url   string
	Proxy string
}

func (this *UpdateCheck) Check(ctx context.Context) (*ReleaseInfo, error) {

	historyUrl := this.Url
	if historyUrl == "" {
		return nil, errors.New("update check url not set")
	}

	client := http.DefaultClient

	if this.Proxy != "" {

		dialer, err := this.proxyDialer()
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy dialer: %s", err.Error())
		}

		client = &http.Client{Transport: &http.Transport{DialContext: dialer.DialContext}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyUrl, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "maddsua/devmeter")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	release := parseReleaseHistory(string(body), runtime.GOOS)
	if release == nil {
		return nil, errors.New("no valid release entries found")
	}

	if err := release.compare(); err != nil {
		return nil, err
	}

	slog.Debug("updates: release history loaded",
		slog.String("last_version", release.Version),
		slog.Bool("update_available", release.UpdateAvailable))

	return release, nil
}

func (this *UpdateCheck) proxyDialer() (proxy.ContextDialer, error) {

	proxyUrl, err := url.Parse(this.Proxy)
	if err != nil {
		return nil, err
	}

	var proxyAuth *proxy.Auth
	if user := proxyUrl.User; user != nil && user.Username() != "" {

		proxyAuth = &proxy.Auth{User: user.Username()}

		if pass, has := user.Password(); has {
			proxyAuth.Password = pass
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyUrl.Host, proxyAuth, proxy.Direct)
	if err != nil {
		return nil, err
	}

	return dialer.(proxy.ContextDialer), nil
}

// parseReleaseHistory scans the history file for "version", "release-notes"
// and "download-<platform>" entries, keeping the newest version that has a
// download link for this platform.
func parseReleaseHistory(history string, platform string) *ReleaseInfo {

	const nameVersion = "version "
	const nameNotes = "release-notes "
	nameDownload := "download-" + platform + " "

	var result *ReleaseInfo

	var version, notes, downloadUrl string
	var validVersion bool

	var flush = func() {
		if validVersion {
			result = &ReleaseInfo{
				Version:      version,
				ReleaseNotes: notes,
				DownloadUrl:  downloadUrl,
			}
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(history, "\r", ""), "\n") {

		switch {

		case strings.HasPrefix(line, nameVersion):
			flush()
			version = strings.TrimPrefix(line, nameVersion)
			notes, downloadUrl = "", ""
			validVersion = false

		case strings.HasPrefix(line, nameNotes):
			notes = strings.TrimPrefix(line, nameNotes)

		case strings.HasPrefix(line, nameDownload):
			downloadUrl = strings.TrimPrefix(line, nameDownload)
			validVersion = true
		}
	}

	flush()

	return result
}

func (this *ReleaseInfo) compare() error {

	chunks := strings.Split(this.Version, ".")
	if len(chunks) < 2 {
		return fmt.Errorf("invalid version format '%s'", this.Version)
	}

	major, err := strconv.Atoi(chunks[0])
	if err != nil {
		return fmt.Errorf("invalid version format '%s'", this.Version)
	}

	minor, err := strconv.Atoi(chunks[1])
	if err != nil {
		return fmt.Errorf("invalid version format '%s'", this.Version)
	}

	var genVersion = func(major, minor int) int {
		return major*10000 + minor
	}

	published := genVersion(major, minor)
	running := genVersion(verMajor, verMinor)

	switch {

	case running < published:
		this.UpdateAvailable = true

	case running == published:
		if len(chunks) > 2 {
			if build, err := strconv.Atoi(chunks[2]); err == nil && verBuild < build {
				this.UpdateAvailable = true
			}
		}

	default:
		this.Prerelease = true
	}

	return nil
}
