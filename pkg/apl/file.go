// pkg/apl/file.go
package apl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"storeapp/pkg/apperr"
)

// fileAPL keeps every installation in one JSON document keyed by tenant URL.
// The file is the source of truth: it is re-read on every call and replaced
// with a rename so readers never see a half-written document.
type fileAPL struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) APL {
	return &fileAPL{path: path}
}

func (f *fileAPL) load() (map[string]AuthData, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]AuthData{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]AuthData{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return out, nil
}

func (f *fileAPL) save(all map[string]AuthData) error {
	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *fileAPL) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return nil, apperr.Storage(err, "apl: read auth data file", nil)
	}
	if d, ok := all[tenantAPIURL]; ok {
		return &d, nil
	}
	return nil, nil
}

func (f *fileAPL) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return apperr.Storage(err, "apl: read auth data file", nil)
	}
	all[data.TenantAPIURL] = data
	if err := f.save(all); err != nil {
		return apperr.Storage(err, "apl: write auth data file", nil)
	}
	return nil
}

func (f *fileAPL) UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return false, apperr.Storage(err, "apl: read auth data file", nil)
	}
	d, ok := all[tenantAPIURL]
	if !ok || d.Token != token {
		return false, nil
	}
	d.JWKS = jwks
	all[tenantAPIURL] = d
	if err := f.save(all); err != nil {
		return false, apperr.Storage(err, "apl: write auth data file", nil)
	}
	return true, nil
}

func (f *fileAPL) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.load()
	if err != nil {
		return apperr.Storage(err, "apl: read auth data file", nil)
	}
	if _, ok := all[tenantAPIURL]; !ok {
		return nil
	}
	delete(all, tenantAPIURL)
	if err := f.save(all); err != nil {
		return apperr.Storage(err, "apl: write auth data file", nil)
	}
	return nil
}

func (f *fileAPL) GetAll(ctx context.Context) ([]AuthData, error) {
	f.mu.Lock()
	all, err := f.load()
	f.mu.Unlock()
	if err != nil {
		return nil, apperr.Storage(err, "apl: read auth data file", nil)
	}
	out := make([]AuthData, 0, len(all))
	for _, d := range all {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantAPIURL < out[j].TenantAPIURL })
	return out, nil
}

func (f *fileAPL) IsReady(ctx context.Context) ReadyResult {
	dir := filepath.Dir(f.path)
	st, err := os.Stat(dir)
	if err != nil {
		return ReadyResult{Reason: fmt.Errorf("auth data directory %s: %w", dir, err)}
	}
	if !st.IsDir() {
		return ReadyResult{Reason: fmt.Errorf("auth data directory %s is not a directory", dir)}
	}
	if _, err := f.load(); err != nil {
		return ReadyResult{Reason: err}
	}
	return ReadyResult{Ready: true}
}

func (f *fileAPL) IsConfigured(ctx context.Context) ConfiguredResult {
	if f.path == "" {
		return ConfiguredResult{Reason: errors.New("FILE_APL_PATH is empty")}
	}
	return ConfiguredResult{Configured: true}
}
