package main

import (
	"encoding/json"

	"langd/internal/protocol"
	"langd/internal/server"
)

type openOrChangeParams struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type closeParams struct {
	Path string `json:"path"`
}

type cancelParams struct {
	ID string `json:"id"`
}

// decodeNotification maps a wire notification method + raw params onto a
// server.ClientNotification, the dispatcher's decode step for the editor
// lifecycle methods (spec.md §6).
func decodeNotification(method protocol.Method, raw json.RawMessage) (server.ClientNotification, bool) {
	switch method {
	case protocol.MethodDidOpen:
		var p openOrChangeParams
		if json.Unmarshal(raw, &p) != nil {
			return server.ClientNotification{}, false
		}
		return server.ClientNotification{Kind: server.NotifyDidOpen, Path: p.Path, Text: p.Text}, true

	case protocol.MethodDidChange:
		var p openOrChangeParams
		if json.Unmarshal(raw, &p) != nil {
			return server.ClientNotification{}, false
		}
		return server.ClientNotification{Kind: server.NotifyDidChange, Path: p.Path, Text: p.Text}, true

	case protocol.MethodDidClose:
		var p closeParams
		if json.Unmarshal(raw, &p) != nil {
			return server.ClientNotification{}, false
		}
		return server.ClientNotification{Kind: server.NotifyDidClose, Path: p.Path}, true

	case protocol.MethodCancel:
		var p cancelParams
		if json.Unmarshal(raw, &p) != nil {
			return server.ClientNotification{}, false
		}
		return server.ClientNotification{Kind: server.NotifyCancel, CancelID: p.ID}, true

	default:
		return server.ClientNotification{}, false
	}
}
