package platforms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/roomwatch/roomwatch/internal/httpclient"
	"github.com/roomwatch/roomwatch/internal/room"
)

const defaultHuyaRoomURL = "https://mp.huya.com/cache.php"

// huya liveStatus values
const (
	huyaStatusOn     = "ON"
	huyaStatusReplay = "REPLAY"
)

// HuyaAdapter fetches room status from the huya mobile profile endpoint.
// Huya's totalCount is a raw viewer count rather than an opaque heat score.
type HuyaAdapter struct {
	client  httpclient.Client
	roomURL string
}

// NewHuyaAdapter creates a huya adapter using the given HTTP client.
func NewHuyaAdapter(client httpclient.Client) *HuyaAdapter {
	return &HuyaAdapter{
		client:  client,
		roomURL: defaultHuyaRoomURL,
	}
}

// Platform returns the platform this adapter serves.
func (*HuyaAdapter) Platform() room.Platform {
	return room.PlatformHuya
}

// Fetch retrieves the current status of a huya room.
func (a *HuyaAdapter) Fetch(ctx context.Context, id string, withAvatar bool) (*room.Status, error) {
	reqURL := fmt.Sprintf("%s?m=Live&do=profileRoom&roomid=%s", a.roomURL, url.QueryEscape(id))
	body, err := a.client.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("huya room request failed: %w", err)
	}

	payload := gjson.ParseBytes(body)
	if status := payload.Get("status").Int(); status != 200 {
		return nil, fmt.Errorf("huya API returned status %d: %s", status, payload.Get("message").String())
	}

	data := payload.Get("data")
	liveStatus := data.Get("realLiveStatus").String()
	if liveStatus == "" {
		liveStatus = data.Get("liveStatus").String()
	}
	liveData := data.Get("liveData")

	st := &room.Status{
		IsLive:   liveStatus == huyaStatusOn || liveStatus == huyaStatusReplay,
		IsReplay: liveStatus == huyaStatusReplay,
		Title:    liveData.Get("introduction").String(),
		Owner:    liveData.Get("nick").String(),
		Cover:    liveData.Get("screenshot").String(),
		Heat:     liveData.Get("totalCount").Int(),
	}

	if withAvatar {
		st.Avatar = liveData.Get("avatar180").String()
	}

	return st, nil
}
