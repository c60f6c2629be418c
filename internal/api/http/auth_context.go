package httpapi

import "context"

type authContextKey string

const authWalletKey authContextKey = "authWallet"

func withWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, authWalletKey, wallet)
}

// walletFromContext returns the authenticated wallet, empty if none.
func walletFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(authWalletKey).(string); ok {
		return v
	}
	return ""
}
