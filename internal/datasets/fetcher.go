package datasets

import (
	"context"

	"github.com/phlyk/bewhere-mvp-sub002/internal/fetch"
)

// Fetcher is what dataset extractors need from the download layer. The
// concrete implementation lives in internal/fetch; extractor tests substitute
// local fixtures.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (*fetch.Result, error)
	Validate(source string) bool
}
