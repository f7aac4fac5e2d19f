package origin

import (
	"context"

	dhkalign "github.com/dhkalign/gateway/internal"
)

type ctxKey int

const (
	ctxKeyInput ctxKey = iota
	ctxKeyCacheKey
)

func contextWithInput(ctx context.Context, in dhkalign.TranslateInput) context.Context {
	return context.WithValue(ctx, ctxKeyInput, in)
}

func inputFromContext(ctx context.Context) dhkalign.TranslateInput {
	in, _ := ctx.Value(ctxKeyInput).(dhkalign.TranslateInput)
	return in
}

func contextWithCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxKeyCacheKey, key)
}

func cacheKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(ctxKeyCacheKey).(string)
	return key
}
