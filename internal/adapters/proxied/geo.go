package proxied

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/predikt-markets/engine/internal/domain"
)

// egressCheckResponse is the shape of the geo-IP lookup the verification
// gate calls before the feed connects.
type egressCheckResponse struct {
	CountryCode string `json:"country_code"`
}

// VerifyEgress asserts the process's outbound traffic resolves to one of
// allowedRegions, per spec §4.A/§6's startup gate for the Proxied venue.
// A blocked or unreachable region is a fatal, non-retryable configuration
// error — the caller should exit rather than start the feed unauthorized.
func VerifyEgress(ctx context.Context, checkURL string, allowedRegions []string) error {
	client := resty.New()
	var result egressCheckResponse
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(checkURL)
	if err != nil {
		return fmt.Errorf("proxied: egress check request: %w: %w", domain.ErrAuthConfig, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("proxied: egress check status %d: %w", resp.StatusCode(), domain.ErrAuthConfig)
	}

	for _, region := range allowedRegions {
		if result.CountryCode == region {
			return nil
		}
	}
	return fmt.Errorf("proxied: egress resolved to disallowed region %q: %w", result.CountryCode, domain.ErrAuthConfig)
}
