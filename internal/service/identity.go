package service

import (
	"context"

	uferrors "github.com/Aman-CERP/unifind/internal/errors"
)

// Identity resolves the owner of the current request.
type Identity interface {
	CurrentOwner(ctx context.Context) (string, error)
}

// StaticIdentity is a fixed owner, used by the CLI and the stdio server
// where the OS user is the only caller.
type StaticIdentity string

// CurrentOwner implements Identity.
func (id StaticIdentity) CurrentOwner(context.Context) (string, error) {
	if id == "" {
		return "", uferrors.ConfigError("owner is not configured", nil).
			WithSuggestion("Set UNIFIND_OWNER or owner in the config file")
	}
	return string(id), nil
}
