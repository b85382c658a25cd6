package provider

import (
	"github.com/coregx/relay/model"
)

type registryKey struct {
	providerType model.ProviderType
	channel      model.Channel
}

// Registry maps (provider type, channel) pairs to compiled-in adapters.
// It is built once at process start and read-only afterwards, so lookups
// are safe for concurrent use without locking.
//
// Lookup fails closed: a pair with no registered adapter yields a permanent
// CodeProviderNotFound error, distinct from a missing project-provider
// association (CodeRecipientNotFound).
type Registry struct {
	adapters map[registryKey]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[registryKey]Adapter)}
}

// Register binds an adapter to a (provider type, channel) pair.
// Call during process start only; later registration races with lookups.
func (r *Registry) Register(providerType model.ProviderType, channel model.Channel, adapter Adapter) {
	r.adapters[registryKey{providerType: providerType, channel: channel}] = adapter
}

// Resolve returns the adapter for the pair, or a permanent
// CodeProviderNotFound error when none is registered.
func (r *Registry) Resolve(providerType model.ProviderType, channel model.Channel) (Adapter, *Error) {
	adapter, ok := r.adapters[registryKey{providerType: providerType, channel: channel}]
	if !ok {
		return nil, Permanent(CodeProviderNotFound, "no adapter for provider %q on channel %q", providerType, channel)
	}
	return adapter, nil
}

// HasChannel reports whether any adapter serves the channel at all,
// regardless of provider type.
func (r *Registry) HasChannel(channel model.Channel) bool {
	for key := range r.adapters {
		if key.channel == channel {
			return true
		}
	}
	return false
}

// Channels returns the set of channels with at least one registered adapter.
func (r *Registry) Channels() []model.Channel {
	seen := make(map[model.Channel]struct{})
	var channels []model.Channel
	for key := range r.adapters {
		if _, ok := seen[key.channel]; ok {
			continue
		}
		seen[key.channel] = struct{}{}
		channels = append(channels, key.channel)
	}
	return channels
}
