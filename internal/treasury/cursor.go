package treasury

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// listCursor marks a position in the newest-first payment listing. The wire
// form is opaque to clients: base64 over "unixNanos|paymentID".
type listCursor struct {
	createdAt time.Time
	id        string
}

func encodeCursor(p *Payment) string {
	raw := fmt.Sprintf("%d|%s", p.CreatedAt.UnixNano(), p.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor parses a client-supplied cursor. Empty input means "from the
// top" and decodes to nil.
func decodeCursor(s string) (*listCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	nanosStr, id, found := strings.Cut(string(raw), "|")
	if !found || id == "" {
		return nil, fmt.Errorf("invalid cursor")
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor")
	}
	return &listCursor{createdAt: time.Unix(0, nanos).UTC(), id: id}, nil
}

// pageAfter trims a newest-first payment list to the window following cur.
// Resumption matches on payment id first; if the cursor's payment was decided
// away or the id is unknown, it falls back to the first strictly older entry.
func pageAfter(all []*Payment, cur *listCursor, limit int) (items []*Payment, next string, hasMore bool) {
	if cur != nil {
		start := len(all)
		for i, p := range all {
			if p.ID == cur.id {
				start = i + 1
				break
			}
			if p.CreatedAt.Before(cur.createdAt) {
				start = i
				break
			}
		}
		all = all[start:]
	}

	if len(all) <= limit {
		return all, "", false
	}
	items = all[:limit]
	return items, encodeCursor(items[len(items)-1]), true
}
