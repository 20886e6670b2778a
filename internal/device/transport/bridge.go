// Package transport holds the device transports. Bridge talks to a vendor
// gateway that exposes terminals over HTTP; the poller sees only the
// connect, fetch, clear and disconnect capabilities.
package transport

import (
	"context"
	"net/http"
	"net/url"

	"timekeep/internal/device/models"
	"timekeep/internal/platform/upstream"
)

// Bridge is the HTTP device-bridge transport.
type Bridge struct {
	client *upstream.Client
}

func NewBridge(client *upstream.Client) *Bridge {
	return &Bridge{client: client}
}

type recordsResponse struct {
	Records []models.Record `json:"records"`
}

func devicePath(serial, suffix string) string {
	return "/devices/" + url.PathEscape(serial) + suffix
}

func (b *Bridge) Connect(ctx context.Context, serial string) (*models.Info, error) {
	var info models.Info
	if err := b.client.Do(ctx, http.MethodPost, devicePath(serial, "/connect"), nil, nil, &info); err != nil {
		return nil, err
	}
	if info.Serial == "" {
		info.Serial = serial
	}
	return &info, nil
}

func (b *Bridge) FetchRecords(ctx context.Context, serial string) ([]models.Record, error) {
	var resp recordsResponse
	if err := b.client.GetJSON(ctx, devicePath(serial, "/records"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (b *Bridge) Clear(ctx context.Context, serial string) error {
	return b.client.Do(ctx, http.MethodDelete, devicePath(serial, "/records"), nil, nil, nil)
}

func (b *Bridge) Disconnect(ctx context.Context, serial string) error {
	return b.client.Do(ctx, http.MethodPost, devicePath(serial, "/disconnect"), nil, nil, nil)
}
