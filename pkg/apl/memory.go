// pkg/apl/memory.go
package apl

import (
	"context"
	"sort"
	"sync"
)

type memoryAPL struct {
	mu    sync.RWMutex
	byURL map[string]AuthData
}

// NewMemory returns a process-local store. Records are lost on restart, so it
// is meant for tests and single-process development only.
func NewMemory() APL {
	return &memoryAPL{byURL: map[string]AuthData{}}
}

func (m *memoryAPL) Get(ctx context.Context, tenantAPIURL string) (*AuthData, error) {
	if err := checkKey(tenantAPIURL); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.byURL[tenantAPIURL]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *memoryAPL) Set(ctx context.Context, data AuthData) error {
	if err := checkAuthData(data); err != nil {
		return err
	}
	m.mu.Lock()
	m.byURL[data.TenantAPIURL] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryAPL) UpdateJWKS(ctx context.Context, tenantAPIURL, token, jwks string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byURL[tenantAPIURL]
	if !ok || d.Token != token {
		return false, nil
	}
	d.JWKS = jwks
	m.byURL[tenantAPIURL] = d
	return true, nil
}

func (m *memoryAPL) Delete(ctx context.Context, tenantAPIURL string) error {
	if err := checkKey(tenantAPIURL); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.byURL, tenantAPIURL)
	m.mu.Unlock()
	return nil
}

func (m *memoryAPL) GetAll(ctx context.Context) ([]AuthData, error) {
	m.mu.RLock()
	out := make([]AuthData, 0, len(m.byURL))
	for _, d := range m.byURL {
		out = append(out, d)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TenantAPIURL < out[j].TenantAPIURL })
	return out, nil
}

func (m *memoryAPL) IsReady(ctx context.Context) ReadyResult {
	return ReadyResult{Ready: true}
}

func (m *memoryAPL) IsConfigured(ctx context.Context) ConfiguredResult {
	return ConfiguredResult{Configured: true}
}
