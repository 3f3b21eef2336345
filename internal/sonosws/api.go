package sonosws

import (
	"context"
	"fmt"
)

// ========================= high-level API =========================

// PlayClip — проиграть клип uri. volume == 0 — громкость не передаём.
func (c *Client) PlayClip(ctx context.Context, uri string, volume int) (Response, error) {
	playerID, err := c.GetPlayerID(ctx)
	if err != nil {
		return nil, err
	}
	command := Payload{
		"namespace": "audioClip:1",
		"command":   "loadAudioClip",
		"playerId":  playerID,
	}
	options := Payload{
		"name":      c.appName,
		"appId":     c.appID,
		"streamUrl": uri,
	}
	if volume != 0 {
		options["volume"] = volume
	}
	return c.Send(ctx, command, options)
}

// GetHouseholdID — колонка отвечает householdId даже на пустую команду.
func (c *Client) GetHouseholdID(ctx context.Context) (string, error) {
	c.idMu.Lock()
	id := c.householdID
	c.idMu.Unlock()
	if id != "" {
		return id, nil
	}

	resp, err := c.Send(ctx, Payload{}, nil)
	if err != nil {
		return "", err
	}
	id, _ = resp.Status().GetString("householdId")
	if id == "" {
		return "", newDispatchError("could not determine household ID")
	}

	c.idMu.Lock()
	c.householdID = id
	c.idMu.Unlock()
	return id, nil
}

func (c *Client) GetGroups(ctx context.Context) (Response, error) {
	householdID, err := c.GetHouseholdID(ctx)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, Payload{
		"namespace":   "groups:1",
		"command":     "getGroups",
		"householdId": householdID,
	}, nil)
}

// GetPlayerID — ищем в группах плеер с websocketUrl == c.uri, нужна AUDIO_CLIP.
func (c *Client) GetPlayerID(ctx context.Context) (string, error) {
	c.idMu.Lock()
	id := c.playerID
	c.idMu.Unlock()
	if id != "" {
		return id, nil
	}

	resp, err := c.GetGroups(ctx)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", newDispatchError(fmt.Sprintf("retrieving group data failed: %v", map[string]any(resp.Data())))
	}

	players, _ := resp.Data()["players"].([]any)
	for _, p := range players {
		player, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if url, _ := player["websocketUrl"].(string); url != c.uri {
			continue
		}
		if !hasCapability(player["capabilities"], CapabilityAudioClip) {
			return "", &UnsupportedError{Capability: CapabilityAudioClip}
		}
		id, _ = player["id"].(string)
		if id == "" {
			return "", newDispatchError("matching player has no id")
		}
		c.idMu.Lock()
		c.playerID = id
		c.idMu.Unlock()
		return id, nil
	}
	return "", newDispatchError("no matching player found in group data")
}

func hasCapability(v any, capability string) bool {
	caps, _ := v.([]any)
	for _, cp := range caps {
		if s, _ := cp.(string); s == capability {
			return true
		}
	}
	return false
}
