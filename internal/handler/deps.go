package handler

import (
	"context"

	"cfoclient/internal/app/oauth"
)

// CallbackRunner completes a provider callback. *oauth.Handler implements it.
type CallbackRunner interface {
	Handle(ctx context.Context, cb oauth.Callback) oauth.Result
}

type AppDeps struct {
	Callback CallbackRunner

	// Done is called once with the outcome of the callback; it may be nil.
	Done func(oauth.Result)
}
