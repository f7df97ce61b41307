package platforms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/roomwatch/roomwatch/internal/httpclient"
	"github.com/roomwatch/roomwatch/internal/room"
)

const defaultDouyuRoomURL = "https://www.douyu.com/betard/"

// DouyuAdapter fetches room status from the douyu room endpoint. Douyu
// reports looped rebroadcasts through the videoLoop flag.
type DouyuAdapter struct {
	client  httpclient.Client
	roomURL string
}

// NewDouyuAdapter creates a douyu adapter using the given HTTP client.
func NewDouyuAdapter(client httpclient.Client) *DouyuAdapter {
	return &DouyuAdapter{
		client:  client,
		roomURL: defaultDouyuRoomURL,
	}
}

// Platform returns the platform this adapter serves.
func (*DouyuAdapter) Platform() room.Platform {
	return room.PlatformDouyu
}

// Fetch retrieves the current status of a douyu room. The avatar is part of
// the room payload, so withAvatar costs nothing extra here.
func (a *DouyuAdapter) Fetch(ctx context.Context, id string, withAvatar bool) (*room.Status, error) {
	body, err := a.client.Get(ctx, a.roomURL+url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("douyu room request failed: %w", err)
	}

	payload := gjson.ParseBytes(body)
	data := payload.Get("room")
	if !data.Exists() {
		return nil, fmt.Errorf("douyu payload has no room object for id %s", id)
	}

	st := &room.Status{
		IsLive:   data.Get("show_status").Int() == 1,
		IsReplay: data.Get("videoLoop").Int() == 1,
		Title:    data.Get("room_name").String(),
		Owner:    data.Get("nickname").String(),
		Cover:    data.Get("room_pic").String(),
		Heat:     data.Get("room_biz_all.hot").Int(),
	}

	if withAvatar {
		st.Avatar = data.Get("avatar.big").String()
	}

	return st, nil
}
