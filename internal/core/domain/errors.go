package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("microphone access denied")
	ErrDeviceNotFound       = errors.New("no audio input device found")
	ErrInsecureContext      = errors.New("device access requires a trusted context")
	ErrServerRejected       = errors.New("broadcast rejected by server")
	ErrPlaybackResumeFailed = errors.New("playback output could not be resumed")
	ErrBroadcastActive      = errors.New("already broadcasting in another room")
	ErrSessionExists        = errors.New("a broadcast is already active in this room")
	ErrSessionNotFound      = errors.New("no active broadcast for this room")
	ErrNotBroadcaster       = errors.New("sender is not the room's broadcaster")
)
