package testutils

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// NewTestUser builds a user for the given phone number.
func NewTestUser(phone string) *storage.User {
	return &storage.User{
		ExternalID:  "whatsapp:" + phone,
		PhoneNumber: phone,
		Timezone:    "UTC",
	}
}

// NewTestMessage builds a text message for a user.
func NewTestMessage(userID int64, providerID, body string) *storage.Message {
	return &storage.Message{
		UserID:            userID,
		ProviderMessageID: providerID,
		Body:              body,
		Kind:              storage.KindText,
		From:              "whatsapp:+15551230000",
		To:                "whatsapp:+15559870000",
	}
}

// NewTestMedia builds a media file with a deterministic 64 character hash
// derived from seed.
func NewTestMedia(seed string) *storage.MediaFile {
	return &storage.MediaFile{
		ProviderMediaID: "ME" + seed,
		ContentType:     "image/jpeg",
		ContentHash:     TestHash(seed),
		Size:            int64(len(seed)),
	}
}

// TestHash pads seed into a valid lowercase hex sha256 string.
func TestHash(seed string) string {
	hex := fmt.Sprintf("%x", seed)
	if len(hex) >= 64 {
		return hex[:64]
	}
	return hex + strings.Repeat("0", 64-len(hex))
}
