package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dirigent-dev/dirigent/pkg/api"
)

// MapHTTPError converts a non-2xx backend response into a CoordError.
// It attempts to parse the body as a ChatErrorResponse to extract a
// descriptive message. All backend failures map to
// provider_unavailable: the router treats them uniformly as "try the
// next provider".
func MapHTTPError(providerID string, resp *http.Response) *api.CoordError {
	message := ExtractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("backend returned HTTP %d", resp.StatusCode)
	}

	err := api.NewProviderUnavailableError(providerID, message)
	err.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	return err
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS failure) into a CoordError.
func MapNetworkError(providerID string, err error) *api.CoordError {
	return api.NewProviderUnavailableError(providerID,
		fmt.Sprintf("backend connection error: %s", err.Error()))
}

// ExtractErrorMessage tries to parse the response body as a
// ChatErrorResponse and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
