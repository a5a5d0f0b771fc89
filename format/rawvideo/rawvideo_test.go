// Package rawvideo
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-21
package rawvideo

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
	"github.com/teocci/go-avpack/av/avutil"
	codec "github.com/teocci/go-avpack/codec/rawvideo"
)

func TestDemuxFrames(t *testing.T) {
	// two full 4x2 yuv420p frames and a short tail
	data := make([]byte, 2*12+5)
	for i := range data {
		data[i] = byte(i)
	}
	d, err := NewDemuxer(bytes.NewReader(data), av.Size{Width: 4, Height: 2}, av.PixFmtYUV420P, 25)
	require.NoError(t, err)

	streams, err := d.Streams()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, av.RAWVIDEO, streams[0].Type())
	assert.Equal(t, av.NewRational(1, 25), streams[0].TimeBase)

	var sizes []int
	for {
		pkt, err := d.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(pkt.Data))
		assert.True(t, pkt.IsKeyFrame)
	}
	assert.Equal(t, []int{12, 12, 5}, sizes)
}

func TestDecoderPlanes(t *testing.T) {
	cd := codec.CodecData{Size: av.Size{Width: 4, Height: 2}, PixFmt: av.PixFmtYUV420P}
	dec, err := codec.NewDecoder(cd)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, dec.SendPacket(av.Packet{Data: data}))
	assert.ErrorIs(t, dec.SendPacket(av.Packet{Data: data}), av.ErrAgain)

	f, err := dec.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, f.Planes[0])
	assert.Equal(t, []byte{9, 10}, f.Planes[1])
	assert.Equal(t, []byte{11, 12}, f.Planes[2])

	_, err = dec.ReceiveFrame()
	assert.ErrorIs(t, err, av.ErrAgain)

	assert.Error(t, dec.SendPacket(av.Packet{Data: data[:5]}))

	require.NoError(t, dec.SendPacket(av.Packet{}))
	_, err = dec.ReceiveFrame()
	assert.Equal(t, io.EOF, err)
}

func TestOptionsFromDict(t *testing.T) {
	size, pf, fps, err := OptionsFromDict(avutil.Dict{"video_size": "640x480"})
	require.NoError(t, err)
	assert.Equal(t, av.Size{Width: 640, Height: 480}, size)
	assert.Equal(t, av.PixFmtYUV420P, pf)
	assert.Equal(t, 25, fps)

	_, pf, _, err = OptionsFromDict(avutil.Dict{"video_size": "2x2", "pixel_format": "rgb24"})
	require.NoError(t, err)
	assert.Equal(t, av.PixFmtRGB24, pf)

	_, _, _, err = OptionsFromDict(nil)
	assert.True(t, errors.Is(err, av.InvalidResolution))

	_, _, _, err = OptionsFromDict(avutil.Dict{"video_size": "2x2", "pixel_format": "nope"})
	assert.Error(t, err)

	_, err = NewDemuxer(nil, av.Size{Width: 0, Height: 2}, av.PixFmtYUV420P, 25)
	assert.True(t, errors.Is(err, av.InvalidResolution))
}
