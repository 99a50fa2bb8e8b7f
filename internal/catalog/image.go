package catalog

import (
	"fmt"
	"time"
)

// shopImageBase serves a cached image of the day's shop, refreshed daily.
const shopImageBase = "https://fortnitey.com/shop-image-%s.jpg"

// ImageURL returns the URL of the shop image for the given day.
func ImageURL(now time.Time) string {
	return fmt.Sprintf(shopImageBase, now.Format("2006-01-02"))
}
