package calendar

import (
	"strings"

	"github.com/stayledger/backend/internal/storage/models"
)

// MatchChannel infers the booking channel from a feed's declared name.
// A channel matches when either trimmed, lower-cased name contains the other.
// The first match in list order wins; nil when nothing matches.
func MatchChannel(feedName string, channels []models.Channel) *models.Channel {
	feed := strings.ToLower(strings.TrimSpace(feedName))
	if feed == "" {
		return nil
	}

	for i := range channels {
		name := strings.ToLower(strings.TrimSpace(channels[i].Name))
		if name == "" {
			continue
		}
		if strings.Contains(feed, name) || strings.Contains(name, feed) {
			return &channels[i]
		}
	}
	return nil
}
