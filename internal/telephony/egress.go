package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// S3Options is the bucket room recordings are uploaded to.
type S3Options struct {
	AccessKey string
	Secret    string
	Region    string
	Bucket    string
}

type egressStarter interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
}

// AudioRecorder records whole rooms as audio-only HLS segments on S3.
type AudioRecorder struct {
	egress egressStarter
	s3     S3Options

	// SegmentSeconds is the length of each uploaded segment.
	SegmentSeconds uint32
}

func NewAudioRecorder(opts LiveKitOptions, s3 S3Options) *AudioRecorder {
	return &AudioRecorder{
		egress:         lksdk.NewEgressClient(opts.URL, opts.APIKey, opts.APISecret),
		s3:             s3,
		SegmentSeconds: 5,
	}
}

// StartRecording starts a room composite egress and returns its id.
func (r *AudioRecorder) StartRecording(ctx context.Context, room string) (string, error) {
	if room == "" {
		return "", errors.New("telephony: room required")
	}
	info, err := r.egress.StartRoomCompositeEgress(ctx, r.request(room))
	if err != nil {
		return "", fmt.Errorf("telephony: start recording %s: %w", room, err)
	}
	return info.GetEgressId(), nil
}

func (r *AudioRecorder) request(room string) *livekit.RoomCompositeEgressRequest {
	return &livekit.RoomCompositeEgressRequest{
		RoomName:  room,
		Layout:    "speaker",
		AudioOnly: true,
		SegmentOutputs: []*livekit.SegmentedFileOutput{{
			FilenamePrefix:   room,
			PlaylistName:     room + "-playlist.m3u8",
			LivePlaylistName: room + "-live-playlist.m3u8",
			SegmentDuration:  r.SegmentSeconds,
			Output: &livekit.SegmentedFileOutput_S3{S3: &livekit.S3Upload{
				AccessKey: r.s3.AccessKey,
				Secret:    r.s3.Secret,
				Region:    r.s3.Region,
				Bucket:    r.s3.Bucket,
			}},
		}},
	}
}
