package decode

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Notification buckets.
const (
	BucketAlert     = "alert"
	BucketPromotion = "promotion"
	BucketReminder  = "reminder"
)

type Notification struct {
	Date    string `json:"date"`
	Content string `json:"content"`
}

// NotificationSet holds one decoded list per bucket.
type NotificationSet struct {
	Alert     []Notification `json:"alert"`
	Promotion []Notification `json:"promotion"`
	Reminder  []Notification `json:"reminder"`
}

// NotificationEntries decodes one bucket: '|'-separated entries of "date@@content". An entry
// without "@@" is all content.
func NotificationEntries(raw string) []Notification {
	return guard("notifications", raw, func() []Notification {
		var out []Notification
		for _, seg := range strings.Split(raw, recordSep) {
			if strings.TrimSpace(seg) == "" {
				continue
			}
			date, content, found := strings.Cut(seg, entrySep)
			if !found {
				date, content = "", seg
			}
			out = append(out, Notification{
				Date:    strings.TrimSpace(date),
				Content: unescape(strings.TrimSpace(content)),
			})
		}
		return out
	})
}

// Notifications decodes the three buckets. They may sit directly in the envelope or inside a
// "notifications" object.
func Notifications(env gjson.Result) NotificationSet {
	obj := Unwrap(env)
	if n := obj.Get(FieldNotifications); n.IsObject() {
		obj = n
	}
	return NotificationSet{
		Alert:     NotificationEntries(obj.Get(BucketAlert).String()),
		Promotion: NotificationEntries(obj.Get(BucketPromotion).String()),
		Reminder:  NotificationEntries(obj.Get(BucketReminder).String()),
	}
}
