package ports

import "context"

// ProfileFetcher reads public profile data from the upstream platform
type ProfileFetcher interface {
	// FetchBlurb returns the current profile blurb of the given user
	FetchBlurb(ctx context.Context, userID uint64) (string, error)
}
