// Package platforms contains the per-platform fetch adapters that talk to
// each upstream livestream platform and parse its payload into a normalized
// status record. The refresh engine is opaque to everything in here beyond
// the Adapter contract.
package platforms

import (
	"context"
	"time"

	"github.com/roomwatch/roomwatch/internal/httpclient"
	"github.com/roomwatch/roomwatch/internal/room"
)

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=adapter.go Adapter

// Adapter fetches and normalizes room status for one platform.
type Adapter interface {
	// Platform returns the platform this adapter serves.
	Platform() room.Platform

	// Fetch retrieves the current status of the room with the given ID.
	// withAvatar requests that the adapter also resolve the owner's avatar,
	// which may cost an extra upstream call; adapters may skip avatar
	// resolution when it is false.
	Fetch(ctx context.Context, id string, withAvatar bool) (*room.Status, error)
}

// AvatarSource is implemented by adapters that expose a secondary,
// lower-priority avatar lookup usable as a fallback enrichment after the
// primary fetch.
type AvatarSource interface {
	// FetchAvatar resolves the avatar URL for the room's owner.
	FetchAvatar(ctx context.Context, id string) (string, error)
}

// Registry maps platforms to their adapters.
type Registry map[room.Platform]Adapter

// For returns the adapter for the given platform, if one is registered.
func (r Registry) For(p room.Platform) (Adapter, bool) {
	a, ok := r[p]
	return a, ok
}

// NewRegistry creates adapters for all supported platforms sharing one HTTP
// client. A zero timeout uses the client default.
func NewRegistry(timeout time.Duration) Registry {
	client := httpclient.NewDefaultClient(timeout)
	return RegistryWithClient(client)
}

// RegistryWithClient creates adapters for all supported platforms using the
// provided HTTP client.
func RegistryWithClient(client httpclient.Client) Registry {
	return Registry{
		room.PlatformBilibili: NewBilibiliAdapter(client),
		room.PlatformDouyu:    NewDouyuAdapter(client),
		room.PlatformHuya:     NewHuyaAdapter(client),
	}
}
