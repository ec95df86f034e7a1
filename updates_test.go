package devmeter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyFixture = "version 0.5\r\n" +
	"release-notes https://example.com/notes-0.5\r\n" +
	"download-linux https://example.com/dl/0.5/linux\r\n" +
	"download-windows https://example.com/dl/0.5/win\r\n" +
	"version 99.1.2\r\n" +
	"release-notes https://example.com/notes-99.1\r\n" +
	"download-linux https://example.com/dl/99.1/linux\r\n" +
	"download-windows https://example.com/dl/99.1/win\r\n" +
	"version 100.0\r\n" +
	"release-notes https://example.com/notes-100.0\r\n"

func TestParseReleaseHistory(t *testing.T) {

	release := parseReleaseHistory(historyFixture, "linux")
	require.NotNil(t, release)

	// version 100.0 has no download link and must be skipped
	assert.Equal(t, "99.1.2", release.Version)
	assert.Equal(t, "https://example.com/dl/99.1/linux", release.DownloadUrl)
	assert.Equal(t, "https://example.com/notes-99.1", release.ReleaseNotes)

	assert.Nil(t, parseReleaseHistory(historyFixture, "plan9"))
	assert.Nil(t, parseReleaseHistory("", "linux"))
}

func TestReleaseCompare(t *testing.T) {

	t.Run("newer published", func(t *testing.T) {
		release := ReleaseInfo{Version: "99.1.2"}
		require.NoError(t, release.compare())
		assert.True(t, release.UpdateAvailable)
		assert.False(t, release.Prerelease)
	})

	t.Run("older published", func(t *testing.T) {
		release := ReleaseInfo{Version: "0.5"}
		require.NoError(t, release.compare())
		assert.False(t, release.UpdateAvailable)
		assert.True(t, release.Prerelease)
	})

	t.Run("invalid format", func(t *testing.T) {
		release := ReleaseInfo{Version: "nonsense"}
		assert.Error(t, release.compare())
	})
}

func TestUpdateCheck(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(wrt http.ResponseWriter, req *http.Request) {
		wrt.Write([]byte(historyFixture))
	}))
	defer server.Close()

	check := UpdateCheck{Url: server.URL + "/history.txt"}

	release, err := check.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "99.1.2", release.Version)
	assert.True(t, release.UpdateAvailable)
}

func TestUpdateCheckErrors(t *testing.T) {

	t.Run("no url", func(t *testing.T) {
		check := UpdateCheck{}
		_, err := check.Check(context.Background())
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {

		server := httptest.NewServer(http.HandlerFunc(func(wrt http.ResponseWriter, req *http.Request) {
			wrt.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		check := UpdateCheck{Url: server.URL}
		_, err := check.Check(context.Background())
		assert.Error(t, err)
	})
}
