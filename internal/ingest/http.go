package ingest

import (
	"context"
	"errors"
	"net/http"

	"github.com/AngelCh415/leadfunnel/internal/utils"
)

// GetJSONWithRetry decodes the response of newReq into dst, retrying
// transport errors, 429 and 5xx with exponential backoff. Other statuses and
// decoding failures are returned at once.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, b utils.Backoff, newReq func() (*http.Request, error), dst any) error {
	return b.Do(ctx, func(int) error {
		req, err := newReq()
		if err != nil {
			return utils.Permanent(err)
		}
		err = getJSON(ctx, c, req, dst)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.Is(err, errDecode) || (errors.As(err, &se) && !se.Retryable()) {
			return utils.Permanent(err)
		}
		if ctx.Err() != nil {
			return utils.Permanent(err)
		}
		return err
	})
}
