// Package ffmpeg
// Decodes H.264 and HEVC packets with libavcodec through go-astiav.
// The decoder is compiled with the ffmpeg build tag, without it Handler
// registers no decoder and H.264/HEVC decoding reports an unsupported codec.
// Created by RTT.
// Author: teocci@yandex.com on 2023-Mar-27
package ffmpeg
