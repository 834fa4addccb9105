package nimble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRepositoryResponseBytes caps the repository manifest and per-mod SRF
// response bodies, preventing memory exhaustion from a malicious or
// misconfigured remote.
const maxRepositoryResponseBytes = 64 * 1024 * 1024 // 64 MB

const userAgent = "nimble-sync/1"

// NewHTTPClient builds the shared client used for every repository and SRF
// fetch: a dedicated transport with conservative timeouts, HTTP/2 enabled,
// and environment-proxy support, tuned the same way as the mod-portal client.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 20 * time.Second,
		},
		Timeout: 60 * time.Second,
	}
}

// BasicAuth holds optional HTTP Basic credentials advertised by a
// repository manifest.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Server describes one download origin a repository may advertise.
type Server struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RepoMod is one mod entry as advertised by a repository manifest.
type RepoMod struct {
	ModName  string      `json:"modName"`
	Checksum Digest      `json:"checkSum"`
	Enabled  bool        `json:"enabled"`
	Version  flexibleInt `json:"version,omitempty"`
}

// Repository is the remote manifest describing every mod a client is
// expected to have installed, along with where to fetch them from. Its
// own Checksum embeds a remote generation timestamp and is deliberately
// never used for equality decisions (see the differ).
type Repository struct {
	RepoName                string      `json:"repoName"`
	Checksum                string      `json:"checkSum"`
	RequiredMods            []RepoMod   `json:"requiredMods"`
	OptionalMods            []RepoMod   `json:"optionalMods"`
	ClientParameters        string      `json:"clientParameters"`
	RepoBasicAuthentication *BasicAuth  `json:"repoBasicAuthentication,omitempty"`
	Version                 flexibleInt `json:"version"`
	Servers                 []Server    `json:"servers"`
}

// flexibleInt accepts either a JSON number or a numeric JSON string,
// matching the upstream repo.json's inconsistent encoding of integer
// fields across server versions.
type flexibleInt int64

func (n *flexibleInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("parsing integer field %q: %w", data, err)
	}
	*n = flexibleInt(v)
	return nil
}

func (n flexibleInt) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(n), 10)), nil
}

// RepositoryManifestPath is the fixed manifest filename under a
// repository's base URL.
const RepositoryManifestPath = "repo.json"

// RepoModSRFURL builds the remote URL for a mod's SRF manifest.
func RepoModSRFURL(repoURL, modName string) string {
	return joinURL(repoURL, modName, srfFileName)
}

// RepoFileURL builds the remote URL for one file within a mod.
func RepoFileURL(repoURL, modName, relativePath string) string {
	return joinURL(repoURL, modName, relativePath)
}

func joinURL(base string, segments ...string) string {
	url := trimTrailingSlash(base)
	for _, s := range segments {
		url += "/" + s
	}
	return url
}

func trimTrailingSlash(s string) string {
	return strings.TrimRight(s, "/")
}

func doGet(ctx context.Context, client *http.Client, url string, auth *BasicAuth) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NewError(KindHTTP, url, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	if auth != nil {
		req.SetBasicAuth(auth.Username, auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewError(KindHTTP, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewError(KindHTTP, url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRepositoryResponseBytes))
	if err != nil {
		return nil, NewError(KindHTTP, url, fmt.Errorf("reading response: %w", err))
	}
	return body, nil
}

// GetRepository fetches and decodes the repository manifest at
// <repoURL>/repo.json.
func GetRepository(ctx context.Context, client *http.Client, repoURL string) (Repository, error) {
	body, err := doGet(ctx, client, joinURL(repoURL, RepositoryManifestPath), nil)
	if err != nil {
		return Repository{}, err
	}

	var repo Repository
	if err := json.Unmarshal(body, &repo); err != nil {
		return Repository{}, NewError(KindRepositoryFetch, repoURL, fmt.Errorf("decoding repository manifest: %w", err))
	}
	return repo, nil
}

// GetRemoteSRF fetches the raw mod.srf bytes for modName from repoURL,
// using HTTP Basic Auth when the repository advertised it. Callers are
// responsible for BOM-stripping and codec dispatch (see Decode).
func GetRemoteSRF(ctx context.Context, client *http.Client, repoURL, modName string, auth *BasicAuth) ([]byte, error) {
	url := RepoModSRFURL(repoURL, modName)
	body, err := doGet(ctx, client, url, auth)
	if err != nil {
		return nil, NewError(KindRepositoryFetch, url, err)
	}
	return body, nil
}
