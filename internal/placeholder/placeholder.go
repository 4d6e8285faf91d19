// Package placeholder classifies candidate cover images as real covers or
// known "no cover available" placeholders. Providers sometimes answer a
// cover request with HTTP 200 and a placeholder image instead of an error,
// so URL-shape checks alone are not enough; callers able to decode the
// image should also run the dimension check. Both checks are advisory,
// never fatal.
package placeholder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
)

// LocalPlaceholderPath is the application's own fallback cover asset.
const LocalPlaceholderPath = "/images/no-cover.png"

// maxImageBytes bounds how much of a remote cover CheckRemote will read.
const maxImageBytes = 8 << 20

type dimensions struct {
	width  int
	height int
}

// Pixel sizes of the canned "image not available" covers served by
// Google Books and OpenLibrary.
var knownPlaceholderSizes = map[dimensions]bool{
	// Google Books
	{120, 192}: true,
	{128, 188}: true,
	{128, 196}: true,
	{128, 197}: true,
	// OpenLibrary
	{180, 270}: true,
	{130, 195}: true,
	{260, 390}: true,
}

// IsLikelyURL reports whether a cover URL is empty, points at the local
// placeholder asset, is a Google Books content URL missing the zoom
// quality flag, or uses the retired ISBNdb image host path.
func IsLikelyURL(coverURL string) bool {
	if strings.TrimSpace(coverURL) == "" {
		return true
	}
	if strings.Contains(coverURL, LocalPlaceholderPath) {
		return true
	}

	u, err := url.Parse(coverURL)
	if err != nil {
		return true
	}

	// Google Books serves its "image not available" tile from the same
	// content endpoint as real covers; the zoom parameter is what selects
	// a usable rendition.
	if strings.HasSuffix(u.Host, "books.google.com") && strings.Contains(u.Path, "/books/content") {
		if u.Query().Get("zoom") == "" {
			return true
		}
	}

	// Legacy ISBNdb image host, dead since the hosting migration.
	if u.Host == "images.isbndb.com" && strings.HasPrefix(u.Path, "/covers/") {
		return true
	}

	return false
}

// IsLikelyDimensions reports whether a decoded cover's pixel size matches
// a known placeholder: degenerate 1x1 (or smaller) images, or one of the
// fixed sizes the providers use for their "no cover" tiles.
func IsLikelyDimensions(width, height int) bool {
	if width <= 1 && height <= 1 {
		return true
	}
	return knownPlaceholderSizes[dimensions{width, height}]
}

// Verdict is the result of a remote cover inspection.
type Verdict int

const (
	// VerdictUnknown means the image could not be fetched or decoded.
	VerdictUnknown Verdict = iota
	// VerdictReal means the image decoded to a non-placeholder size.
	VerdictReal
	// VerdictPlaceholder means the image matched a known placeholder.
	VerdictPlaceholder
)

// CheckRemote fetches a cover and applies both heuristics to the decoded
// image. Fetch or decode failures yield VerdictUnknown with the error;
// callers treat unknown as "keep what we have".
func CheckRemote(ctx context.Context, client *http.Client, coverURL string) (Verdict, error) {
	if IsLikelyURL(coverURL) {
		return VerdictPlaceholder, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("creating cover request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("fetching cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return VerdictUnknown, fmt.Errorf("cover fetch returned status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return VerdictUnknown, fmt.Errorf("decoding cover: %w", err)
	}

	bounds := img.Bounds()
	if IsLikelyDimensions(bounds.Dx(), bounds.Dy()) {
		return VerdictPlaceholder, nil
	}
	return VerdictReal, nil
}
