// Package transcription composes the stream controller, transcript and
// speaker registry behind one provider-agnostic API.
package transcription

import (
	"fmt"
	"strings"
)

// Provider selects the transcription backend and its capture adapter.
type Provider string

const (
	ProviderAzure    Provider = "azure"
	ProviderDeepgram Provider = "deepgram"
	ProviderMock     Provider = "mock"
)

// ProviderInfo is the display metadata of a provider.
type ProviderInfo struct {
	ID      Provider `json:"id"`
	Label   string   `json:"label"`
	Adapter string   `json:"adapter"`
}

var providers = []ProviderInfo{
	{ID: ProviderAzure, Label: "Azure Speech", Adapter: "pcm"},
	{ID: ProviderDeepgram, Label: "Deepgram Nova-3", Adapter: "container"},
	{ID: ProviderMock, Label: "Simulated Stream", Adapter: "synthetic"},
}

// Providers lists the supported providers.
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(providers))
	copy(out, providers)
	return out
}

// ParseProvider maps a provider name to a Provider. Unknown names fall back
// to azure.
func ParseProvider(s string) Provider {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, info := range providers {
		if info.ID == p {
			return p
		}
	}
	return ProviderAzure
}

// Info returns the display metadata of p.
func (p Provider) Info() ProviderInfo {
	for _, info := range providers {
		if info.ID == p {
			return info
		}
	}
	return providers[0]
}

// Role is the participant's role in a room.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleHost, RoleViewer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}
