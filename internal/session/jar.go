package session

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sync"
)

// FileJar is an http.CookieJar that mirrors the cookies for one origin
// to a file, standing in for the browser's ambient cookie store. The
// refresh cookie the auth server sets survives across CLI invocations
// this way. Pass path="" for a purely in-memory jar.
type FileJar struct {
	mu   sync.Mutex
	jar  *cookiejar.Jar
	base *url.URL
	path string
}

func NewFileJar(path string, base *url.URL) (*FileJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	f := &FileJar{jar: jar, base: base, path: path}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var cookies []*http.Cookie
			if json.Unmarshal(data, &cookies) == nil {
				jar.SetCookies(base, cookies)
			}
		}
	}
	return f, nil
}

func (f *FileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jar.SetCookies(u, cookies)
	f.persistLocked()
}

func (f *FileJar) Cookies(u *url.URL) []*http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jar.Cookies(u)
}

func (f *FileJar) persistLocked() {
	if f.path == "" {
		return
	}
	data, err := json.Marshal(f.jar.Cookies(f.base))
	if err != nil {
		return
	}
	// Best effort: a failed write costs one re-login, nothing more.
	_ = os.WriteFile(f.path, data, 0o600)
}
