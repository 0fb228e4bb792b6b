package main

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/vansante/go-ffprobe.v2"
)

const probeTimeout = 5 * time.Second

// VideoInfo is what ffprobe tells us about a video
type VideoInfo struct {
	Duration   time.Duration
	Width      int
	Height     int
	FrameRate  string
	VideoCodec string
	AudioCodec string
	HasAudio   bool
}

// Open the video with ffprobe and extract stream information
func probeVideo(ctx context.Context, id string) (VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	data, err := ffprobe.ProbeURL(ctx, id)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("probing %q: %w", id, err)
	}

	var info VideoInfo
	if data.Format != nil {
		info.Duration = data.Format.Duration()
	}
	if v := data.FirstVideoStream(); v != nil {
		info.Width, info.Height = v.Width, v.Height
		info.FrameRate = v.AvgFrameRate
		info.VideoCodec = v.CodecName
	}
	if a := data.FirstAudioStream(); a != nil {
		info.HasAudio = true
		info.AudioCodec = a.CodecName
	}
	return info, nil
}
