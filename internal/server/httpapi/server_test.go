package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/droplocker/droplocker/internal/common"
	"github.com/droplocker/droplocker/internal/cryptox"
	"github.com/droplocker/droplocker/internal/logging"
	"github.com/droplocker/droplocker/internal/masterkey"
	"github.com/droplocker/droplocker/internal/server/blobs"
	"github.com/droplocker/droplocker/internal/server/records"
	"github.com/droplocker/droplocker/internal/server/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLinkSecret = "test-link-secret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	repo, err := records.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	store, err := blobs.NewFileStore(t.TempDir())
	require.NoError(t, err)
	master, err := masterkey.FromKey(common.GenerateRandByteArray(cryptox.KeySize))
	require.NoError(t, err)

	logger := logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	v := vault.NewService(repo, store, master, logger, 30*24*time.Hour)

	s := NewServer(":0", "http://example.test", logger, v, testLinkSecret)
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return s, ts
}

func uploadFile(t *testing.T, ts *httptest.Server, name string, content []byte) uploadResponse {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func configureLink(t *testing.T, ts *httptest.Server, req linkRequest) linkResponse {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/link", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out linkResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadDownload_EndToEnd(t *testing.T) {
	_, ts := newTestServer(t)

	content := []byte("end to end payload")
	up := uploadFile(t, ts, "message.txt", content)
	assert.Len(t, up.ArtifactID, 16)
	assert.Equal(t, "txt", up.Extension)

	resp, err := http.Get(ts.URL + "/api/download/" + up.ArtifactID)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "message.txt")

	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownload_OneTimeGone(t *testing.T) {
	_, ts := newTestServer(t)

	up := uploadFile(t, ts, "once.txt", []byte("gone after this"))

	first, err := http.Get(ts.URL + "/api/download/" + up.ArtifactID)
	require.NoError(t, err)
	io.Copy(io.Discard, first.Body)
	first.Body.Close()
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/api/download/" + up.ArtifactID)
	require.NoError(t, err)
	defer second.Body.Close()
	assert.Equal(t, http.StatusNotFound, second.StatusCode)
}

func TestLink_PasswordFlow(t *testing.T) {
	_, ts := newTestServer(t)

	up := uploadFile(t, ts, "guarded.txt", []byte("password protected"))
	link := configureLink(t, ts, linkRequest{
		ArtifactID:    up.ArtifactID,
		ExpirySeconds: 86400,
		Password:      "secret",
	})
	assert.True(t, link.HasPassword)
	assert.Contains(t, link.Link, up.ArtifactID)
	assert.Contains(t, link.Link, "token=")

	wrong, err := http.Get(fmt.Sprintf("%s/api/download/%s?password=wrong", ts.URL, up.ArtifactID))
	require.NoError(t, err)
	wrong.Body.Close()
	assert.Equal(t, http.StatusNotFound, wrong.StatusCode)

	right, err := http.Get(fmt.Sprintf("%s/api/download/%s?password=secret", ts.URL, up.ArtifactID))
	require.NoError(t, err)
	defer right.Body.Close()
	require.Equal(t, http.StatusOK, right.StatusCode)

	got, err := io.ReadAll(right.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("password protected"), got)
}

func TestDownload_ExistenceOracleClosed(t *testing.T) {
	_, ts := newTestServer(t)

	up := uploadFile(t, ts, "guarded.txt", []byte("x"))
	configureLink(t, ts, linkRequest{ArtifactID: up.ArtifactID, ExpirySeconds: 3600, Password: "pw"})

	readResp := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	// Wrong password on an existing artifact vs a missing artifact:
	// status and body must be byte-identical.
	existStatus, existBody := readResp("/api/download/" + up.ArtifactID + "?password=nope")
	missStatus, missBody := readResp("/api/download/0000000000000000")

	assert.Equal(t, http.StatusNotFound, existStatus)
	assert.Equal(t, existStatus, missStatus)
	assert.Equal(t, existBody, missBody)
}

func TestDownload_TamperedTokenRejected(t *testing.T) {
	_, ts := newTestServer(t)

	up := uploadFile(t, ts, "f.txt", []byte("x"))
	configureLink(t, ts, linkRequest{ArtifactID: up.ArtifactID, ExpirySeconds: 3600})

	// A token signed with a different secret must not pass.
	forged, err := GenerateLinkToken(up.ArtifactID, []byte("other-secret"), time.Now().Add(time.Hour))
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/api/download/%s?token=%s", ts.URL, up.ArtifactID, forged))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInfo(t *testing.T) {
	_, ts := newTestServer(t)

	up := uploadFile(t, ts, "report.pdf", []byte("pdf body"))

	resp, err := http.Get(ts.URL + "/api/info/" + up.ArtifactID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info infoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "report.pdf", info.Name)
	assert.Equal(t, int64(8), info.PlaintextSize)
	assert.False(t, info.HasPassword)
}

func TestInfo_Missing(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/info/0000000000000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_NoFile(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/upload", "multipart/form-data; boundary=x", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLink_InvalidBody(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/link", "application/json", bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLinkToken_RoundTrip(t *testing.T) {
	token, err := GenerateLinkToken("0123456789abcdef", []byte(testLinkSecret), time.Now().Add(time.Hour))
	require.NoError(t, err)

	id, err := ArtifactIDFromToken(token, []byte(testLinkSecret))
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", id)
}

func TestLinkToken_Expired(t *testing.T) {
	token, err := GenerateLinkToken("0123456789abcdef", []byte(testLinkSecret), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = ArtifactIDFromToken(token, []byte(testLinkSecret))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
