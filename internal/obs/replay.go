package obs

import (
	"context"
	"errors"
	"fmt"
)

const mediaActionRestart = "OBS_WEBSOCKET_MEDIA_INPUT_ACTION_RESTART"

type playlistItem struct {
	Value    string `json:"value"`
	Hidden   bool   `json:"hidden"`
	Selected bool   `json:"selected"`
}

func vlcSettings(paths []string) map[string]any {
	items := make([]playlistItem, 0, len(paths))
	for _, p := range paths {
		items = append(items, playlistItem{Value: p})
	}
	return map[string]any{
		"playlist":          items,
		"loop":              false,
		"shuffle":           false,
		"playback_behavior": "stop_restart",
	}
}

// ConfigureReplayBuffer makes sure the replay buffer output is running.
func (c *Client) ConfigureReplayBuffer(ctx context.Context) error {
	var status struct {
		OutputActive bool `json:"outputActive"`
	}
	if err := c.call(ctx, "GetReplayBufferStatus", nil, &status); err != nil {
		return err
	}
	if status.OutputActive {
		return nil
	}
	return c.call(ctx, "StartReplayBuffer", nil, nil)
}

// InitVideoSource creates the managed VLC source in the current program
// scene, or clears its playlist if it already exists.
func (c *Client) InitVideoSource(ctx context.Context) error {
	err := c.call(ctx, "GetInputSettings", map[string]any{"inputName": c.inputName}, nil)
	if err == nil {
		return c.setPlaylist(ctx, nil)
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Code != codeResourceNotFound {
		return err
	}

	var scene struct {
		SceneName               string `json:"sceneName"`
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := c.call(ctx, "GetCurrentProgramScene", nil, &scene); err != nil {
		return err
	}
	sceneName := scene.SceneName
	if sceneName == "" {
		sceneName = scene.CurrentProgramSceneName
	}
	if sceneName == "" {
		return errors.New("obs reported no current program scene")
	}

	return c.call(ctx, "CreateInput", map[string]any{
		"sceneName":        sceneName,
		"inputName":        c.inputName,
		"inputKind":        "vlc_source",
		"inputSettings":    vlcSettings(nil),
		"sceneItemEnabled": true,
	}, nil)
}

// Play points the managed VLC source at paths, in order, and restarts it.
func (c *Client) Play(ctx context.Context, paths []string) error {
	if err := c.setPlaylist(ctx, paths); err != nil {
		return err
	}
	return c.call(ctx, "TriggerMediaInputAction", map[string]any{
		"inputName":   c.inputName,
		"mediaAction": mediaActionRestart,
	}, nil)
}

// SaveBuffer asks OBS to write the replay buffer to disk. Completion is
// reported later as a SaveEvent.
func (c *Client) SaveBuffer(ctx context.Context) error {
	return c.call(ctx, "SaveReplayBuffer", nil, nil)
}

func (c *Client) setPlaylist(ctx context.Context, paths []string) error {
	if err := c.call(ctx, "SetInputSettings", map[string]any{
		"inputName":     c.inputName,
		"inputSettings": vlcSettings(paths),
		"overlay":       true,
	}, nil); err != nil {
		return fmt.Errorf("set %s playlist: %w", c.inputName, err)
	}
	return nil
}
