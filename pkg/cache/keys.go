package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Key joins parts with ':'. Times at midnight UTC are written as dates.
func Key(parts ...interface{}) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		switch v := p.(type) {
		case string:
			b.WriteString(v)
		case time.Time:
			if v.Equal(v.UTC().Truncate(24 * time.Hour)) {
				b.WriteString(v.UTC().Format("2006-01-02"))
			} else {
				b.WriteString(v.UTC().Format(time.RFC3339))
			}
		default:
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Digest shortens s to 32 hex characters for use inside a key.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

func tagKey(tag string) string {
	return "tag:" + tag
}
