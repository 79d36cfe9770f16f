package gmail

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/kirillkom/mailtriage/internal/core/domain"
)

// wrapGmailError maps Gmail API failures onto the pipeline's error kinds so
// the use case layer can tell "abort the cycle" from "retry later" from
// "skip".
func wrapGmailError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return domain.WrapError(domain.ErrAuth, operation, err)
		case apiErr.Code == http.StatusNotFound:
			return domain.WrapError(domain.ErrNotFound, operation, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return domain.WrapError(domain.ErrTransient, operation, err)
		}
		return fmt.Errorf("%s: %w", operation, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrTransient, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
