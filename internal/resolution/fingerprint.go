package resolution

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"timekeep/internal/punch/models"
)

// Fingerprint identifies one physical punch across resubmissions: the device,
// its local user, the punch type and the punch time floored to the tolerance
// window. Two submissions inside the same window share a fingerprint.
func Fingerprint(ev models.Event, tolerance time.Duration) string {
	var b strings.Builder
	b.WriteString(ev.DeviceSerial)
	b.WriteByte('|')
	b.WriteString(ev.DeviceUserID)
	b.WriteByte('|')
	b.WriteString(string(ev.Type))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(window(ev.PunchTime, tolerance), 10))

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// window returns the start of t's tolerance window in unix seconds.
func window(t time.Time, tolerance time.Duration) int64 {
	secs := int64(tolerance / time.Second)
	if secs <= 0 {
		secs = 1
	}
	unix := t.Unix()
	return unix - ((unix%secs)+secs)%secs
}
