package models

import "time"

// FeedMessage is the wire format of the change feed. The server hub sends
// one MSG_SUBSCRIBED frame when a subscription is accepted, then one frame
// per insert/delete on the collage.
type FeedMessage struct {
	Type      string    `json:"type"`
	CollageID string    `json:"collageId"`
	PhotoID   string    `json:"photoId,omitempty"`
	Photo     *Photo    `json:"photo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed message types
const (
	MSG_SUBSCRIBED   = "feed.subscribed"
	MSG_PHOTO_INSERT = "photo.insert"
	MSG_PHOTO_DELETE = "photo.delete"
)

// Event converts a wire frame into a validated ChangeEvent. The transport
// may redeliver frames or carry junk from a misbehaving server; anything
// that does not form a complete tagged event is rejected here so nothing
// untyped travels deeper into the controller.
func (m *FeedMessage) Event() (ChangeEvent, bool) {
	switch m.Type {
	case MSG_PHOTO_INSERT:
		if m.Photo == nil || m.Photo.ID == "" {
			return ChangeEvent{}, false
		}
		return ChangeEvent{
			Kind:      EventInsert,
			CollageID: m.CollageID,
			PhotoID:   m.Photo.ID,
			Photo:     m.Photo,
		}, true
	case MSG_PHOTO_DELETE:
		if m.PhotoID == "" {
			return ChangeEvent{}, false
		}
		return ChangeEvent{
			Kind:      EventDelete,
			CollageID: m.CollageID,
			PhotoID:   m.PhotoID,
		}, true
	}
	return ChangeEvent{}, false
}

// Frame builds the wire frame for a change event.
func (ev ChangeEvent) Frame() *FeedMessage {
	msg := &FeedMessage{
		CollageID: ev.CollageID,
		PhotoID:   ev.PhotoID,
		Timestamp: time.Now(),
	}
	switch ev.Kind {
	case EventInsert:
		msg.Type = MSG_PHOTO_INSERT
		msg.Photo = ev.Photo
	case EventDelete:
		msg.Type = MSG_PHOTO_DELETE
	}
	return msg
}
