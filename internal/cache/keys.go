package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(clientID string) string {
	return fmt.Sprintf("ratelimit:%s", clientID)
}

func WalletViewKey(userID uuid.UUID) string {
	return fmt.Sprintf("wallet:view:%s", userID)
}
