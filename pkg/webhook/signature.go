package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Newsdesk-Signature"
	HeaderTimestamp = "X-Newsdesk-Timestamp"
)

// sign returns hex(HMAC-SHA256(secret, "<unix ts>.<payload>")).
func sign(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the signature headers of a received delivery. maxAge of 0
// skips the timestamp window check.
func Verify(secret string, payload []byte, h http.Header, maxAge time.Duration) error {
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if maxAge > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > maxAge || age < -time.Minute {
			return fmt.Errorf("%w: timestamp outside window", ErrInvalidSignature)
		}
	}
	if !hmac.Equal([]byte(sign(secret, ts, payload)), []byte(h.Get(HeaderSignature))) {
		return fmt.Errorf("%w: mismatch", ErrInvalidSignature)
	}
	return nil
}
