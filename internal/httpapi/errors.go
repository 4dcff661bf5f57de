package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"distill/internal/apierr"
)

// writeError renders err as the API's standard error envelope. Any
// error is accepted: apierr.Errors map to their own code/status, and
// everything else degrades to a 500 internal error so a handler never
// needs a bare error branch.
func writeError(c *fiber.Ctx, err error) error {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.CodeInternal, err.Error(), err)
	}

	reqID, _ := c.Locals("request_id").(string)
	return c.Status(apierr.HTTPStatus(apiErr.Code)).JSON(errorEnvelope{
		Error: errorBody{
			Code:      string(apiErr.Code),
			Message:   apiErr.Message,
			RequestID: reqID,
			Details:   apiErr.Details,
		},
	})
}
