package platforms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/roomwatch/roomwatch/internal/httpclient"
	"github.com/roomwatch/roomwatch/internal/room"
)

const (
	defaultBilibiliRoomURL   = "https://api.live.bilibili.com/room/v1/Room/get_info"
	defaultBilibiliAnchorURL = "https://api.live.bilibili.com/live_user/v1/UserInfo/get_anchor_in_room"

	// bilibili live_status values
	bilibiliStatusLive  = 1
	bilibiliStatusRound = 2 // carousel rebroadcast of recorded content
)

// BilibiliAdapter fetches room status from the bilibili live API. Owner name
// and avatar live on a separate anchor-info endpoint, which doubles as the
// secondary avatar source.
type BilibiliAdapter struct {
	client    httpclient.Client
	roomURL   string
	anchorURL string
}

// NewBilibiliAdapter creates a bilibili adapter using the given HTTP client.
func NewBilibiliAdapter(client httpclient.Client) *BilibiliAdapter {
	return &BilibiliAdapter{
		client:    client,
		roomURL:   defaultBilibiliRoomURL,
		anchorURL: defaultBilibiliAnchorURL,
	}
}

// Platform returns the platform this adapter serves.
func (*BilibiliAdapter) Platform() room.Platform {
	return room.PlatformBilibili
}

// Fetch retrieves the current status of a bilibili room.
func (a *BilibiliAdapter) Fetch(ctx context.Context, id string, withAvatar bool) (*room.Status, error) {
	body, err := a.client.Get(ctx, a.roomURL+"?room_id="+url.QueryEscape(id))
	if err != nil {
		return nil, fmt.Errorf("bilibili room info request failed: %w", err)
	}

	payload := gjson.ParseBytes(body)
	if code := payload.Get("code").Int(); code != 0 {
		return nil, fmt.Errorf("bilibili API returned code %d: %s", code, payload.Get("message").String())
	}

	data := payload.Get("data")
	liveStatus := data.Get("live_status").Int()

	st := &room.Status{
		IsLive:   liveStatus == bilibiliStatusLive || liveStatus == bilibiliStatusRound,
		IsReplay: liveStatus == bilibiliStatusRound,
		Title:    data.Get("title").String(),
		Cover:    data.Get("user_cover").String(),
		Heat:     data.Get("online").Int(),
	}

	if withAvatar {
		// Owner name and avatar come from the anchor endpoint. A failure
		// here degrades the result instead of failing the fetch; the cache's
		// sticky fields cover the gap.
		owner, avatar, err := a.anchorInfo(ctx, id)
		if err == nil {
			st.Owner = owner
			st.Avatar = avatar
		}
	}

	return st, nil
}

// FetchAvatar resolves the room owner's avatar through the anchor endpoint.
func (a *BilibiliAdapter) FetchAvatar(ctx context.Context, id string) (string, error) {
	_, avatar, err := a.anchorInfo(ctx, id)
	return avatar, err
}

func (a *BilibiliAdapter) anchorInfo(ctx context.Context, id string) (owner, avatar string, err error) {
	body, err := a.client.Get(ctx, a.anchorURL+"?roomid="+url.QueryEscape(id))
	if err != nil {
		return "", "", fmt.Errorf("bilibili anchor info request failed: %w", err)
	}

	payload := gjson.ParseBytes(body)
	if code := payload.Get("code").Int(); code != 0 {
		return "", "", fmt.Errorf("bilibili API returned code %d: %s", code, payload.Get("message").String())
	}

	info := payload.Get("data.info")
	return info.Get("uname").String(), info.Get("face").String(), nil
}
