// Package avutil
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-18
package avutil

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teocci/go-avpack/av"
)

type stubDemuxer struct {
	name string
	rest []byte
}

func (d *stubDemuxer) Streams() ([]av.Stream, error) {
	return nil, nil
}

func (d *stubDemuxer) ReadPacket() (av.Packet, error) {
	return av.Packet{}, io.EOF
}

func stubHandler(name, magic string) func(*RegisterHandler) {
	return func(h *RegisterHandler) {
		h.Name = name
		h.Ext = "." + name
		h.Probe = func(b []byte) bool {
			return bytes.HasPrefix(b, []byte(magic))
		}
		h.ReaderDemuxer = func(r io.Reader, _ Dict) (av.Demuxer, error) {
			rest, err := io.ReadAll(r)
			return &stubDemuxer{name: name, rest: rest}, err
		}
	}
}

func TestOpenDemuxer(t *testing.T) {
	hs := &Handlers{}
	hs.Add(stubHandler("aaa", "AA"))
	hs.Add(stubHandler("bbb", "BB"))

	d, err := hs.OpenDemuxer(strings.NewReader("BBpayload"), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "bbb", d.(*stubDemuxer).name)
	// probing must not consume input
	assert.Equal(t, []byte("BBpayload"), d.(*stubDemuxer).rest)

	d, err = hs.OpenDemuxer(strings.NewReader("BBpayload"), "aaa", nil)
	require.NoError(t, err)
	assert.Equal(t, "aaa", d.(*stubDemuxer).name)

	_, err = hs.OpenDemuxer(strings.NewReader("CC"), "", nil)
	assert.Error(t, err)
	_, err = hs.OpenDemuxer(strings.NewReader(""), "", nil)
	assert.Error(t, err)
	_, err = hs.OpenDemuxer(strings.NewReader("AA"), "ccc", nil)
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	hs := &Handlers{}
	hs.Add(stubHandler("aaa", "AA"))

	h, ok := hs.FindByExt("/tmp/movie.AAA")
	require.True(t, ok)
	assert.Equal(t, "aaa", h.Name)

	_, ok = hs.FindByExt("noext")
	assert.False(t, ok)
	_, ok = hs.FindByName("zzz")
	assert.False(t, ok)

	_, err := hs.NewMuxer("aaa", nil)
	assert.Error(t, err)
}

type stubCodec struct{}

func (stubCodec) Type() av.CodecType {
	return av.JPEG
}

func TestNewVideoDecoder(t *testing.T) {
	hs := &Handlers{}
	_, err := hs.NewVideoDecoder(stubCodec{}, nil)
	assert.ErrorIs(t, err, av.UnsupportedCodec)

	failed := errors.New("boom")
	hs.Add(func(h *RegisterHandler) {
		h.Name = "jpeg"
		h.DecoderTypes = []av.CodecType{av.JPEG}
		h.NewVideoDecoder = func(av.CodecData, Dict) (av.VideoDecoder, error) {
			return nil, failed
		}
	})
	_, err = hs.NewVideoDecoder(stubCodec{}, nil)
	assert.ErrorIs(t, err, failed)

	// decoder only handlers are not containers
	_, ok := hs.FindByName("jpeg")
	assert.False(t, ok)
}

func TestDict(t *testing.T) {
	var d Dict
	_, ok := d.Get("video_size")
	assert.False(t, ok)

	d = Dict{"video_size": "4x2"}
	c := d.Copy()
	c["video_size"] = "8x8"
	v, ok := d.Get("video_size")
	assert.True(t, ok)
	assert.Equal(t, "4x2", v)
}
