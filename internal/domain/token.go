package domain

// Token represents a tracked token and its metadata.
// Owned by the registry; created on discovery or backfill success.
type Token struct {
	Address      string  // token mint address (primary key)
	Symbol       string  // ticker symbol
	Name         string  // display name
	Pool         *string // pool address used for historical fetches (nullable)
	LaunchedAt   int64   // Unix timestamp in milliseconds, 0 if unknown
	TrackedSince int64   // Unix timestamp in milliseconds
}

// TokenInfo is a discovery candidate before it is tracked.
type TokenInfo struct {
	Address   string // token mint address
	Symbol    string // ticker symbol
	Name      string // display name
	CreatedAt int64  // Unix timestamp in milliseconds, 0 if unknown
}
