package provider

import (
	"errors"
	"strings"
)

const (
	CodeUnspecified int32 = 0
	CodeRazorpay    int32 = 1
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[int32]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	items := make(map[int32]Provider, len(providers))
	for _, p := range providers {
		items[p.Code()] = p
	}
	return &Registry{providers: items}
}

func (r *Registry) Get(code int32) (Provider, error) {
	provider, ok := r.providers[code]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}

// ParseCode maps a route or query value to a provider code.
func ParseCode(raw string) (int32, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "razorpay", "1":
		return CodeRazorpay, nil
	default:
		return CodeUnspecified, ErrProviderNotSupported
	}
}
